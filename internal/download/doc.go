// Package download fetches catalog items into a working directory.
//
// The package has three layers:
//   - [Fetcher] : one external fetch call, with [YTDLPFetcher] as the concrete adapter
//   - [Downloader] : single-item fetch with classified retry and exponential backoff
//   - [Dispatcher] : bounded worker pool over many items feeding one completion queue
//
// Failures are classified by [Classify]. Adapters tag errors they understand with a
// [FetchError]; anything untagged falls back to a substring heuristic over the message.
package download
