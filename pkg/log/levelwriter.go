package log

import (
	"io"

	"github.com/rs/zerolog"
)

// MinLevelWriter forwards only records at or above Min to the wrapped
// writer. Used to keep the error-only log free of routine output.
type MinLevelWriter struct {
	Writer io.Writer
	Min    zerolog.Level
}

func (w *MinLevelWriter) Write(p []byte) (int, error) {
	// Level-less writes (zerolog fallback path) are dropped; everything
	// interesting arrives through WriteLevel.
	return len(p), nil
}

func (w *MinLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.Min {
		return len(p), nil
	}
	return w.Writer.Write(p)
}
