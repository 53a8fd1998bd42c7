// Package audit writes best-effort audit entries after a primary write has
// committed. Record never blocks the caller and never reports failure; write
// errors are logged and counted.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/data"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

const (
	LevelInfo = "info"

	ContextAgents = "agents"
	ContextTasks  = "tasks"

	writeTimeout = 5 * time.Second
)

// Recorder is what the registry and the orchestrator depend on.
type Recorder interface {
	Record(ctx context.Context, entry types.SystemLog)
}

// Writer persists entries to system_logs and, when redis is configured,
// appends them to a stream for downstream consumers.
type Writer struct {
	db      *gorm.DB
	rdb     *redis.Client
	stream  string
	log     *slog.Logger
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

func NewWriter(db *gorm.DB, rdb *redis.Client, stream string, log *slog.Logger, m *metrics.Metrics) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{db: db, rdb: rdb, stream: stream, log: log.With("component", "audit"), metrics: m}
}

// Record schedules entry for writing and returns immediately. The write
// survives cancellation of ctx.
func (w *Writer) Record(ctx context.Context, entry types.SystemLog) {
	if entry.Level == "" {
		entry.Level = LevelInfo
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detached := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		wctx, cancel := context.WithTimeout(detached, writeTimeout)
		defer cancel()
		w.write(wctx, entry)
	}()
}

// Wait blocks until every scheduled entry has been attempted.
func (w *Writer) Wait() { w.wg.Wait() }

func (w *Writer) write(ctx context.Context, entry types.SystemLog) {
	if err := w.db.WithContext(ctx).Create(&entry).Error; err != nil {
		w.metrics.AuditFailed()
		w.log.Warn("audit entry not stored",
			"message", entry.Message, "user_id", entry.UserID, "err", err)
		return
	}
	if w.rdb == nil || w.stream == "" {
		return
	}
	if err := data.PublishEvent(ctx, w.rdb, w.stream, streamPayload(entry)); err != nil {
		w.log.Warn("audit event not published", "stream", w.stream, "id", entry.ID, "err", err)
	}
}

func streamPayload(e types.SystemLog) map[string]interface{} {
	p := map[string]interface{}{
		"id":      e.ID,
		"level":   e.Level,
		"message": e.Message,
		"context": e.Context,
		"user_id": e.UserID,
		"time":    e.CreatedAt.Unix(),
	}
	if e.AgentID != nil {
		p["agent_id"] = *e.AgentID
	}
	if e.TaskID != nil {
		p["task_id"] = *e.TaskID
	}
	return p
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, types.SystemLog) {}
