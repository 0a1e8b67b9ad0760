// Package model defines the data structures shared by the icapscan packages.
//
// This package contains the following main types:
//   - Verdict: The outcome of scanning one file (clean, infected, error)
//   - FileScan: The record of one file submitted to an ICAP server
//   - Summary: Counts over a batch of scans, used by reports
//
// The pipeline, database and report packages all exchange these types, so
// they live in their own package to avoid import cycles. FileScan is
// serializable to JSON for report output and database storage.
package model
