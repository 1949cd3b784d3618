// Package models defines the fixed-shape records that flow through a mirror run.
//
// The package contains two categories of types:
//
// 1. Catalog records: produced by the remote catalog client and immutable once fetched
//   - [CatalogItem] : one remote media entry
//   - [Segment] : a named sub-collection such as a playlist
//   - [Metadata] : the normalized subset of an item used for tagging and placement
//
// 2. Run history: persisted in sqlite for the status command
//   - [SyncRun] : counters and timing of one sync or clean invocation
//   - [RunFailure] : a per-item failure recorded against a run
package models
