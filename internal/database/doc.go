// Package database provides SQLite-based scan history storage for icapscan.
//
// ScanDB stores one row per file scan: the file identity (path, size,
// SHA3-256 digest), the ICAP server it was sent to, and the verdict. The
// history command uses it to answer "was this exact file scanned before, and
// what did the server say?".
//
// The driver is modernc.org/sqlite, a CGO-free SQLite implementation, so the
// database is a single file under the XDG data directory.
package database
