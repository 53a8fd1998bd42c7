package webserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/agents"
)

type Agents struct {
	registry *agents.Registry
	log      *slog.Logger
}

func NewAgents(r *agents.Registry, log *slog.Logger) Agents {
	return Agents{registry: r, log: log}
}

func (a Agents) List(c *gin.Context) {
	list, err := a.registry.List(c.Request.Context())
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": list})
}

func (a Agents) Create(c *gin.Context) {
	var in agents.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, a.log, bindError(err))
		return
	}
	agent, err := a.registry.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}
