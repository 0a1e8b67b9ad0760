// Package pipeline runs each file through the scan steps in sequence and
// fans a batch of files out over a bounded number of goroutines.
//
// A single file goes through ReadStep (load the payload, detect its content
// type, compute its SHA3-256 digest), ScanStep (submit it to the ICAP server)
// and, as a deferred step, RecordStep (store the outcome in the history
// database). Deferred steps run even when an earlier step failed, so failed
// scans are recorded too.
//
// BatchProcessor uses errgroup to limit concurrency. Every file gets its own
// ICAP connection, so the limit is also the number of open connections.
package pipeline
