package logger

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/smukkama/device-etl/internal/version"
)

// NewLogger returns a JSON logger writing to stdout, filtered at the given
// level (debug, info, warn or error)
func NewLogger(lvl string) log.Logger {
	return New(os.Stdout, lvl)
}

// New builds the logger on an arbitrary writer
func New(w io.Writer, lvl string) log.Logger {
	logger := log.NewJSONLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow(lvl))
	logger = log.With(logger,
		"service", version.BinaryName,
		"ts", log.DefaultTimestampUTC,
		"version", version.Version,
	)

	return logger
}

func allow(lvl string) level.Option {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
