// Package storage defines the local table store that mirrored feed
// series and the feed registry live in.
//
// # Overview
//
// The store is an ordered, unique-key table abstraction: one registry
// table and one series table per feed, keyed by feed name. A feed's
// series is a dense regular grid (see package series), so a backend only
// needs the grid origin, the interval, and the value column; the tick
// timestamps are implicit and density is structural.
//
// # Backends
//
// memory: map-backed, data lost on restart. Used by tests and for
// development.
//
// badger: BadgerDB-backed, used in production. Series values are packed
// into zstd-compressed chunks keyed by a feed-name hash plus a chunk
// sequence number, so keys iterate in time order within a feed.
//
// # Semantics backends must preserve
//
//   - Key order: chunk iteration returns a series in increasing time
//     order, never re-sorted.
//   - Missing values: the missing marker is stored and returned distinct
//     from zero.
//   - Registry immutability: SaveRegistry refuses to replace an existing
//     registry (ErrRegistryExists); adding feeds requires a fresh store.
//   - Whole-series saves: SaveSeries replaces the feed's series in one
//     operation. The mirror persists once per feed per update pass, so a
//     crash loses at most one pass's progress.
package storage
