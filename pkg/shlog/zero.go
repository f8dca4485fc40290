package shlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Zero = NewZeroLogger("", "info", false)

// NewZeroLogger builds the process logger. JSON is the default output,
// pretty switches to the human readable console writer.
func NewZeroLogger(filepath string, level string, pretty bool) *zerolog.Logger {
	var out io.Writer
	_, w, err := newWriter(filepath)
	if err != nil {
		out = os.Stderr
	} else {
		out = w
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
	return &logger
}

func UpdateZeroLogLevel(logLevel string) error {
	level := parseLevel(logLevel)
	zeroLogger := Zero.With().Logger().Level(level)
	Zero = &zeroLogger
	return nil
}

// ReloadLogger reopens the log destination, keeping the current level.
func ReloadLogger(filepath string, pretty bool) {
	Zero = NewZeroLogger(filepath, Zero.GetLevel().String(), pretty)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
