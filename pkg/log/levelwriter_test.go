package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMinLevelWriterFilters(t *testing.T) {
	var buf bytes.Buffer
	w := &MinLevelWriter{Writer: &buf, Min: zerolog.WarnLevel}
	logger := zerolog.New(zerolog.MultiLevelWriter(w))

	logger.Debug().Msg("routine")
	logger.Info().Msg("routine")
	assert.Empty(t, buf.String(), "info and below must not reach the error log")

	logger.Warn().Msg("first warning")
	logger.Error().Msg("broke")

	out := buf.String()
	assert.Contains(t, out, "first warning")
	assert.Contains(t, out, "broke")
	assert.NotContains(t, out, "routine")
}

func TestMinLevelWriterDropsLevellessWrites(t *testing.T) {
	var buf bytes.Buffer
	w := &MinLevelWriter{Writer: &buf, Min: zerolog.WarnLevel}

	n, err := w.Write([]byte("raw"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, buf.String())
}
