package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{JSON: true, Service: "cdigit", Version: "1.2.0", Writer: &buf})
	log.Debug("hidden")
	log.Info("workflow created", "voucher_id", "WD-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "workflow created", line["msg"])
	assert.Equal(t, "cdigit", line["service"])
	assert.Equal(t, "1.2.0", line["version"])
	assert.Equal(t, "WD-1", line["voucher_id"])
}

func TestNewDebugText(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Debug: true, Writer: &buf}).Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}
