// Package webserver exposes the registry and the task pipeline over HTTP.
package webserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/agents"
	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/logging"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/tasks"
)

// Engine is the part of the inference client the HTTP layer calls directly.
type Engine interface {
	ClassifyIntent(ctx context.Context, req aiengine.InstructionRequest) (json.RawMessage, error)
	ExtractEntities(ctx context.Context, req aiengine.InstructionRequest) (json.RawMessage, error)
	SuggestAgents(ctx context.Context, req aiengine.InstructionRequest) ([]aiengine.AgentSuggestion, error)
	Health(ctx context.Context) (map[string]any, error)
}

// Deps are the services the routes are wired to. Redis and Metrics may be nil.
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Engine  Engine
	Agents  *agents.Registry
	Tasks   *tasks.Orchestrator
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func New(cfg config.Config, d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	g := gin.New()
	g.Use(logging.Requests(d.Log), gin.Recovery())
	attachRoutes(g, cfg, d)
	return g
}
