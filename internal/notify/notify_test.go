package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitefed/labwork/internal/logging"
	"github.com/sitefed/labwork/internal/work"
)

func TestNotifySkipsWhenNoChannelConfigured(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggingNotifier(logging.New(&buf, "runner"))

	err := n.Notify(context.Background(), &work.Work{ID: "w1", Status: work.StatusSuccess})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestNotifyRecordsChannelAndIncludedArtifacts(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggingNotifier(logging.New(&buf, "runner"))

	w := &work.Work{
		ID: "w1", Pipeline: "demo", Status: work.StatusSuccess,
		Results: map[string]interface{}{"ok": true},
		ConfigField: work.Config{
			Notification: &work.Notification{
				Channel:        "#lab-alerts",
				IncludeResults: true,
			},
		},
	}

	require.NoError(t, n.Notify(context.Background(), w))

	var entry logging.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "#lab-alerts", entry.Fields["channel"])
	assert.Equal(t, []interface{}{"results"}, entry.Fields["included"])
}
