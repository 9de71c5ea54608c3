// Package territory maintains population and facility aggregates for the
// territorial hierarchy. Blocks are computed from raw points; municipalities
// and districts roll up the stored aggregates of their children. The city
// aggregate is held by a CityCache owned by the caller.
package territory
