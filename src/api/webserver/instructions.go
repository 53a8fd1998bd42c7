package webserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
	"github.com/stake-plus/stratomai-agents/src/api/tasks"
)

// Instructions forwards analysis requests to the engine. Nothing is stored.
type Instructions struct {
	engine Engine
	log    *slog.Logger
}

func NewInstructions(e Engine, log *slog.Logger) Instructions {
	return Instructions{engine: e, log: log}
}

type instructionBody struct {
	Instruction string         `json:"instruction"`
	AgentID     *string        `json:"agent_id"`
	Context     map[string]any `json:"context"`
}

func (h Instructions) Classify(c *gin.Context) {
	h.forward(c, h.engine.ClassifyIntent)
}

func (h Instructions) Entities(c *gin.Context) {
	h.forward(c, h.engine.ExtractEntities)
}

func (h Instructions) SuggestAgent(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	suggestions, err := h.engine.SuggestAgents(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if suggestions == nil {
		suggestions = []aiengine.AgentSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h Instructions) forward(c *gin.Context, call func(context.Context, aiengine.InstructionRequest) (json.RawMessage, error)) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	body, err := call(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h Instructions) bind(c *gin.Context) (aiengine.InstructionRequest, bool) {
	userID, err := auth.RequirePrincipal(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return aiengine.InstructionRequest{}, false
	}
	var in instructionBody
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.log, bindError(err))
		return aiengine.InstructionRequest{}, false
	}
	if err := tasks.ValidateInstruction(in.Instruction); err != nil {
		writeError(c, h.log, err)
		return aiengine.InstructionRequest{}, false
	}
	return aiengine.InstructionRequest{
		Instruction: in.Instruction,
		UserID:      userID,
		AgentID:     in.AgentID,
		Context:     in.Context,
	}, true
}
