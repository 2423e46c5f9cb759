package qbdt

import (
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger returns a leveled logger writing to stderr. Unknown levels
// leave the logger at warn.
func NewLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "qbdt",
		ReportTimestamp: true,
		Level:           log.WarnLevel,
	})

	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}

	return logger
}
