//go:build !debug

package debug

// Enabled reports whether tracing is compiled in.
const Enabled = false

// Log is a no-op without the debug build tag.
func Log(cat Category, format string, args ...interface{}) {}

// IsEnabled always returns false without the debug build tag.
func IsEnabled(cat Category) bool { return false }
