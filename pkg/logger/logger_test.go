package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_KeyValues(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "debug", Output: &buf, Service: "mediation"})

	log.Info("Message appended", "request_id", "AB12CD34", "count", 3, "error", errors.New("boom"))

	var line map[string]interface{}
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("info", line["level"])
	req.Equal("Message appended", line["message"])
	req.Equal("AB12CD34", line["request_id"])
	req.Equal(float64(3), line["count"])
	req.Equal("boom", line["error"])
	req.Equal("mediation", line["service"])
}

func TestLogger_Level(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Output: &buf})

	log.Info("dropped")
	req.Zero(buf.Len())

	log.With("user_id", "u1").Warn("kept", "dangling")
	var line map[string]interface{}
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("u1", line["user_id"])
	req.Equal("MISSING", line["dangling"])
}
