// Package config provides configuration structures and utilities for harvestd.
// It defines the main configuration options for pacing, identity rotation,
// session storage, and report generation preferences.
package config
