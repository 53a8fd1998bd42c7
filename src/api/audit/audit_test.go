package audit

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/testutil"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

func TestRecordPersistsEntryAfterCallerCancels(t *testing.T) {
	db := testutil.NewDB(t)
	w := NewWriter(db, nil, "", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	taskID := "6c3f7a0e-1b8d-4a55-9d7e-7f7d0f1e2a33"
	w.Record(ctx, types.SystemLog{
		Message:  "Task created",
		Context:  ContextTasks,
		UserID:   "user-1",
		TaskID:   &taskID,
		Metadata: map[string]any{"instruction": "Book a flight to Madrid next week"},
	})
	cancel()
	w.Wait()

	var rows []types.SystemLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, LevelInfo, rows[0].Level)
	assert.Equal(t, taskID, *rows[0].TaskID)
	assert.Equal(t, "Book a flight to Madrid next week", rows[0].Metadata["instruction"])
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestRecordFailureIsLoggedNotPropagated(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Migrator().DropTable(&types.SystemLog{}))

	var buf bytes.Buffer
	m := metrics.New()
	w := NewWriter(db, nil, "", slog.New(slog.NewTextHandler(&buf, nil)), m)

	w.Record(context.Background(), types.SystemLog{Message: "Agent created", UserID: "user-1"})
	w.Wait()

	assert.Contains(t, buf.String(), "audit entry not stored")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestStreamPayload(t *testing.T) {
	agentID := "a-1"
	p := streamPayload(types.SystemLog{ID: 9, Message: "Agent created", AgentID: &agentID})
	assert.Equal(t, uint64(9), p["id"])
	assert.Equal(t, "a-1", p["agent_id"])
	_, hasTask := p["task_id"]
	assert.False(t, hasTask)
}
