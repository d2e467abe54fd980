//go:build debug

package debug

import (
	"os"

	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/logging"
)

// Enabled reports whether tracing is compiled in.
const Enabled = true

var enabled = parseCategories(os.Getenv("SHELF_DEBUG"))

// Log writes a trace line for cat through the zap logger at debug level.
func Log(cat Category, format string, args ...interface{}) {
	if !enabled[cat] {
		return
	}
	logging.L().WithOptions(zap.AddCallerSkip(1)).Sugar().
		With("category", string(cat)).Debugf(format, args...)
}

// IsEnabled reports whether cat is traced.
func IsEnabled(cat Category) bool { return enabled[cat] }
