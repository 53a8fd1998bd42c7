package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const readyCheckTimeout = 3 * time.Second

type Health struct {
	db     *gorm.DB
	rdb    *redis.Client
	engine Engine
}

func NewHealth(db *gorm.DB, rdb *redis.Client, e Engine) Health {
	return Health{db: db, rdb: rdb, engine: e}
}

func (h Health) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports each dependency. Only the database gates readiness; redis
// and the engine are informational.
func (h Health) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
	defer cancel()

	components := gin.H{}
	status := http.StatusOK

	if err := h.pingDB(ctx); err != nil {
		components["database"] = gin.H{"status": "down", "error": err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		components["database"] = gin.H{"status": "up"}
	}

	switch {
	case h.rdb == nil:
		components["redis"] = gin.H{"status": "disabled"}
	default:
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			components["redis"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			components["redis"] = gin.H{"status": "up"}
		}
	}

	if h.engine != nil {
		if _, err := h.engine.Health(ctx); err != nil {
			components["ai_engine"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			components["ai_engine"] = gin.H{"status": "up"}
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	c.JSON(status, gin.H{"status": overall, "components": components})
}

func (h Health) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
