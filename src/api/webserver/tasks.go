package webserver

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/tasks"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

type Tasks struct {
	orch *tasks.Orchestrator
	log  *slog.Logger
}

func NewTasks(o *tasks.Orchestrator, log *slog.Logger) Tasks {
	return Tasks{orch: o, log: log}
}

// List serves GET /v1/tasks?status=&agent_id=.
func (t Tasks) List(c *gin.Context) {
	list, err := t.orch.List(c.Request.Context(), tasks.Filter{
		Status:  types.TaskStatus(c.Query("status")),
		AgentID: c.Query("agent_id"),
	})
	if err != nil {
		writeError(c, t.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list})
}

func (t Tasks) Create(c *gin.Context) {
	var in tasks.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, t.log, bindError(err))
		return
	}
	task, err := t.orch.Submit(c.Request.Context(), in)
	if err != nil {
		writeError(c, t.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}
