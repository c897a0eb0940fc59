//go:build !race

// Package israce reports if the race detector is enabled
package israce

// Enabled is true when built with -race
const Enabled = false
