package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug().Str("document", "ACME_ADT1").Msg("extracting")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "ACME_ADT1", line["document"])
	assert.Equal(t, "extracting", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "WARN", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
