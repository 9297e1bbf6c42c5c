package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTagsAppAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := build(&buf, "lastro", "warn")

	logger.Info().Msg("descartado")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("asset_id", "a1").Msg("aviso")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "lastro", line["app"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "a1", line["asset_id"])
	assert.Contains(t, line, "time")
}

func TestBuildUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	for _, level := range []string{"", "verboso"} {
		logger := build(&buf, "lastro", level)
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel(), "nível %q", level)
	}
	assert.Equal(t, zerolog.DebugLevel, build(&buf, "lastro", " DEBUG ").GetLevel())
}
