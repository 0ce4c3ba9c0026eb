package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, DisabledLevel, ParseLevel("disabled"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestConfigureAndWithStudent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: WarnLevel, Output: &buf})
	t.Cleanup(func() { Configure(Config{Level: InfoLevel}) })

	Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	lgr := WithStudent(Default(), "student123")
	lgr.Warn().Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "student123", entry["studentID"])
	assert.Equal(t, "kept", entry[zerolog.MessageFieldName])
	assert.Equal(t, "warn", entry[zerolog.LevelFieldName])
}
