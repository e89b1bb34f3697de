package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestWithCarriesFields(t *testing.T) {
	buf := captureDefault(t)

	With("enrollment_id", "enr-1").Info("step sent", "step", 2)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "step sent", entry["msg"])
	assert.Equal(t, "enr-1", entry["enrollment_id"])
	assert.Equal(t, "2", entry["step"])
}

func TestEmailFieldsAreRedacted(t *testing.T) {
	buf := captureDefault(t)

	Warn("send failed", "to", "john.doe@example.com", "error", "rejected jane@example.org")

	out := buf.String()
	assert.NotContains(t, out, "john.doe@example.com")
	assert.Contains(t, out, "jo***@example.com")
	assert.Contains(t, out, "ja***@example.org")
}

func TestLevelFiltering(t *testing.T) {
	buf := captureDefault(t)
	SetLevel(WARN)

	Info("dropped")
	Error("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactEmailDisplayName(t *testing.T) {
	assert.Equal(t, "John <jo***@example.com>", RedactEmail("John <john@example.com>"))
}
