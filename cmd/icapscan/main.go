// Package main provides the entry point for the icapscan CLI.
//
// icapscan submits files to an ICAP antivirus service (c-icap with ClamAV,
// Sophos, Kaspersky and others) and reports whether each one is clean or
// infected.
//
// Usage:
//
//	icapscan scan <file>...
//	icapscan options
//	icapscan history [file-or-digest]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
