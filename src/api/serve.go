package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stake-plus/stratomai-agents/src/api/agents"
	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/audit"
	"github.com/stake-plus/stratomai-agents/src/api/data"
	"github.com/stake-plus/stratomai-agents/src/api/logging"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/tasks"
	"github.com/stake-plus/stratomai-agents/src/api/webserver"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := data.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := data.Migrate(db); err != nil {
		return err
	}

	settings := data.NewSettings(db)
	if err := settings.Load(ctx); err != nil {
		log.Warn("settings not loaded, using file and env values", "err", err)
	}
	cfg.ApplySettings(settings.Get)

	rdb, err := data.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	engine := aiengine.NewClient(cfg.AIEngine.URL, cfg.AIEngine.Timeout)
	auditor := audit.NewWriter(db, rdb, cfg.AuditStream, log, m)
	defer auditor.Wait()

	registry := agents.NewRegistry(db, auditor,
		agents.WithMetrics(m),
		agents.WithLogger(log),
	)
	opts := []tasks.Option{tasks.WithMetrics(m), tasks.WithLogger(log)}
	if cfg.EnforceAgentOwnership {
		opts = append(opts, tasks.WithAgentLookup(registry))
	}
	orch := tasks.NewOrchestrator(engine, engine, tasks.NewStore(db), auditor, opts...)

	router := webserver.New(cfg, webserver.Deps{
		DB:      db,
		Redis:   rdb,
		Engine:  engine,
		Agents:  registry,
		Tasks:   orch,
		Metrics: m,
		Log:     log,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Component(log, "http").Info("listening",
			"addr", httpSrv.Addr, "ai_engine", engine.BaseURL(), "redis", rdb != nil)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})
	return g.Wait()
}
