// Package provision computes loyalty scores describing how well the need of
// social groups for a service type is met within a territorial unit.
//
// The engine reads population and facility aggregates from a territory.Store.
// For every (social group, living situation, service type) triple it picks a
// fallback level per travel mode from the need's minute budget, derives a
// capacity/population balance, reweights it by need intensity and combines
// the modes. Group results are then weighted by population.
package provision
