// Package infra contains technical adapters: PostGIS and Redis stores,
// HTTP routing providers, the MQTT bridge and metrics exporters. These
// packages depend only on the interfaces defined in the core packages.
package infra
