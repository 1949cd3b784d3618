// Package tasks orchestrates library syncs with real-time progress reporting.
//
// # Core Operations
//
// [SyncEngine] exposes four operations:
//
//  1. [SyncEngine.Sync] : mirror favorites and playlists
//     - Lists each requested source, skipping segments that fail
//     - Filters out items the ledger already holds (unless forced)
//     - Downloads the rest through the dispatcher, then tags, places and records each success
//     - Persists the ledger once at the end
//
//  2. [SyncEngine.FindOrphans] : records whose items left the remote catalog
//
//  3. [SyncEngine.RemoveOrphans] : delete orphan files, persisting after each removal
//
//  4. [SyncEngine.Acquire] : download and place search results without recording them
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Run History
//
// When a [RunRecorder] is configured every sync and clean is stored as a [models.SyncRun].
// Storage errors are logged and never fail the run.
package tasks
