// Package testutil provides a scripted in-process ICAP server for tests.
package testutil
