package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// baseDir is the directory holding the running binary (symlinks resolved),
// falling back to the working directory.
var baseDir = sync.OnceValue(func() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
})

// runtimePath resolves a configured directory. Relative paths are taken
// from the binary's directory, and an empty value means fallback there.
func runtimePath(raw, fallback string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = fallback
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(baseDir(), target)
}
