// Package repositories implements SQLite persistence for run history.
//
// Key Implementations:
//   - [RunRepository] : sync and clean run summaries with their per-item failures
//
// Runs are keyed by a v4 UUID and listed newest first. Failures live in their own table and
// are removed with their run.
package repositories
