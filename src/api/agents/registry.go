// Package agents owns agent records. Every operation is scoped to the
// principal carried by the context.
package agents

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/audit"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

const minNameLength = 3

// CreateInput is an agent definition as submitted by its owner. Nil fields
// take their defaults.
type CreateInput struct {
	Name         string             `json:"name"`
	Description  *string            `json:"description"`
	Role         types.AgentRole    `json:"role"`
	Personality  *types.Personality `json:"personality"`
	Capabilities []string           `json:"capabilities"`
	SystemPrompt *string            `json:"system_prompt"`
}

type Registry struct {
	db        *gorm.DB
	audit     audit.Recorder
	metrics   *metrics.Metrics
	log       *slog.Logger
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Registry) { r.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

func NewRegistry(db *gorm.DB, rec audit.Recorder, opts ...Option) *Registry {
	r := &Registry{
		db:        db,
		audit:     rec,
		log:       slog.Default(),
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.audit == nil {
		r.audit = audit.Nop{}
	}
	r.log = r.log.With("component", "agents")
	return r
}

// List returns the caller's agents, newest first.
func (r *Registry) List(ctx context.Context) ([]types.Agent, error) {
	owner, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	agents := []types.Agent{}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at desc").
		Find(&agents).Error; err != nil {
		return nil, apierr.Internal("list agents", err)
	}
	return agents, nil
}

// Get returns one of the caller's agents. Agents owned by someone else are
// reported as not found.
func (r *Registry) Get(ctx context.Context, id string) (*types.Agent, error) {
	owner, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	var agent types.Agent
	err = r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		First(&agent).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apierr.NotFound("agent " + id)
	case err != nil:
		return nil, apierr.Internal("get agent", err)
	}
	return &agent, nil
}

// Create validates in, applies defaults and stores the agent.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*types.Agent, error) {
	owner, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	in = r.sanitize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	agent := types.Agent{
		ID:               uuid.NewString(),
		UserID:           owner,
		Name:             in.Name,
		Description:      in.Description,
		Role:             in.Role,
		Personality:      personalityOrDefault(in.Personality),
		Capabilities:     in.Capabilities,
		SystemPrompt:     systemPromptOrDefault(in.SystemPrompt, in.Role),
		IsActive:         true,
		Settings:         map[string]any{},
		TrainingExamples: []map[string]any{},
		Statistics:       types.AgentStatistics{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if agent.Capabilities == nil {
		agent.Capabilities = []string{}
	}

	if err := r.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, apierr.Internal("insert agent", err)
	}
	r.metrics.AgentCreated(string(agent.Role))
	r.log.Info("agent created", "user_id", owner, "agent_id", agent.ID, "role", agent.Role)

	agentID := agent.ID
	r.audit.Record(ctx, types.SystemLog{
		Level:    audit.LevelInfo,
		Message:  "Agent created",
		Context:  audit.ContextAgents,
		UserID:   owner,
		AgentID:  &agentID,
		Metadata: map[string]any{"name": agent.Name, "role": string(agent.Role)},
	})
	return &agent, nil
}

// sanitize strips markup from the free-text fields shown back in the UI.
// Text outside tags is kept as typed.
func (r *Registry) sanitize(in CreateInput) CreateInput {
	in.Name = strings.TrimSpace(r.stripMarkup(in.Name))
	if in.Description != nil {
		d := strings.TrimSpace(r.stripMarkup(*in.Description))
		in.Description = &d
		if d == "" {
			in.Description = nil
		}
	}
	if in.SystemPrompt != nil {
		p := r.stripMarkup(*in.SystemPrompt)
		in.SystemPrompt = &p
	}
	return in
}

// stripMarkup removes tags; the policy entity-encodes what remains, which is
// undone so stored values are plain text.
func (r *Registry) stripMarkup(s string) string {
	return html.UnescapeString(r.sanitizer.Sanitize(s))
}

func validate(in CreateInput) error {
	v := &apierr.ValidationError{}
	if utf8.RuneCountInString(in.Name) < minNameLength {
		v.Add("name", "Name must be at least %d characters", minNameLength)
	}
	if !in.Role.Valid() {
		v.Add("role", "must be one of %s", roleList())
	}
	for i, c := range in.Capabilities {
		if strings.TrimSpace(c) == "" {
			v.Add(fmt.Sprintf("capabilities[%d]", i), "must not be empty")
		}
	}
	return v.OrNil()
}

// personalityOrDefault fills any field the caller left empty.
func personalityOrDefault(p *types.Personality) types.Personality {
	def := types.DefaultPersonality()
	if p == nil {
		return def
	}
	out := *p
	if out.Tone == "" {
		out.Tone = def.Tone
	}
	if out.Language == "" {
		out.Language = def.Language
	}
	if out.Verbosity == "" {
		out.Verbosity = def.Verbosity
	}
	if out.Formality == "" {
		out.Formality = def.Formality
	}
	return out
}

func systemPromptOrDefault(p *string, role types.AgentRole) string {
	if p != nil && strings.TrimSpace(*p) != "" {
		return *p
	}
	return fmt.Sprintf("You are a helpful %s assistant.", role)
}

func roleList() string {
	names := make([]string, len(types.AgentRoles))
	for i, r := range types.AgentRoles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
