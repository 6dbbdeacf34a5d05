package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonTerminalWriterEmitsNDJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "runner")
	l.now = func() time.Time { return time.Unix(0, 0).UTC() }

	l.Info("withdrew work", map[string]interface{}{"id": "w1"})

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, LevelInfo, entry.Level)
	assert.Equal(t, "runner", entry.Component)
	assert.Equal(t, "withdrew work", entry.Message)
	assert.Equal(t, "w1", entry.Fields["id"])
}

func TestWithScopesComponentNameOnly(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "runner")
	scoped := l.With("audit")
	scoped.now = func() time.Time { return time.Unix(0, 0).UTC() }
	scoped.Warn("expired work", nil)

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry.Component)
	assert.Equal(t, LevelWarn, entry.Level)
}

func TestHumanModeWritesDimmedLineNotJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "runner")
	l.human = true
	l.now = func() time.Time { return time.Unix(0, 0).UTC() }

	l.Error("dispatch failed", map[string]interface{}{"id": "w1"})

	out := buf.String()
	assert.Contains(t, out, "dispatch failed")
	assert.Contains(t, out, "id=w1")
	assert.False(t, json.Valid([]byte(strings.SplitN(out, "\n", 2)[0])))
}
