//go:build !linux

package proctitle

// Set is a no-op outside Linux.
func Set(title string) error { return nil }
