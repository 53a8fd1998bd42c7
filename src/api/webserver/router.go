package webserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/logging"
)

func attachRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}
	r.Use(RequestTimeout(cfg.RequestTimeout))

	log := logging.Component(d.Log, "http")
	healthH := NewHealth(d.DB, d.Redis, d.Engine)
	agentH := NewAgents(d.Agents, log)
	taskH := NewTasks(d.Tasks, log)
	instrH := NewInstructions(d.Engine, log)

	r.GET("/health", healthH.Live)
	r.GET("/health/ready", healthH.Ready)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	if cfg.RateLimit.Requests > 0 {
		v1.Use(RateLimitMiddleware(newLimiter(d.Redis, cfg.RateLimit, log)))
	}
	{
		v1.GET("/agents", agentH.List)
		v1.POST("/agents", agentH.Create)

		v1.GET("/tasks", taskH.List)
		v1.POST("/tasks", taskH.Create)

		v1.POST("/instructions/classify", instrH.Classify)
		v1.POST("/instructions/entities", instrH.Entities)
		v1.POST("/instructions/suggest-agent", instrH.SuggestAgent)
	}
}
