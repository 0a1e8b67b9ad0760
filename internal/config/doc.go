// Package config provides configuration structures and utilities for icapscan.
// It defines the ICAP server connection settings, scan behavior and report
// preferences, and loads them from a config file and the environment.
package config
