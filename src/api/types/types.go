package types

import (
	"encoding/json"
	"time"
)

// AgentRole is one of the fixed agent roles.
type AgentRole string

const (
	RoleEmailAssistant AgentRole = "email_assistant"
	RoleCRMManager     AgentRole = "crm_manager"
	RoleScheduler      AgentRole = "scheduler"
	RoleAnalyst        AgentRole = "analyst"
	RoleCustom         AgentRole = "custom"
)

// AgentRoles lists every accepted role in declaration order.
var AgentRoles = []AgentRole{
	RoleEmailAssistant, RoleCRMManager, RoleScheduler, RoleAnalyst, RoleCustom,
}

// Valid reports whether r belongs to the closed role set.
func (r AgentRole) Valid() bool {
	for _, known := range AgentRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Personality describes how an agent talks. All fields are free-form.
type Personality struct {
	Tone      string `json:"tone"`
	Language  string `json:"language"`
	Verbosity string `json:"verbosity"`
	Formality string `json:"formality"`
}

// DefaultPersonality is stored when an agent is created without one.
func DefaultPersonality() Personality {
	return Personality{
		Tone:      "professional",
		Language:  "es",
		Verbosity: "balanced",
		Formality: "medium",
	}
}

// AgentStatistics is maintained by the execution machinery; creation zeroes it.
type AgentStatistics struct {
	TotalTasks          int64 `json:"total_tasks"`
	SuccessfulTasks     int64 `json:"successful_tasks"`
	FailedTasks         int64 `json:"failed_tasks"`
	AvgCompletionTimeMS int64 `json:"avg_completion_time_ms"`
}

// Agents
type Agent struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	UserID           string           `gorm:"size:128;index:idx_agents_user_created,priority:1;not null" json:"user_id"`
	Name             string           `gorm:"size:255;not null" json:"name"`
	Description      *string          `gorm:"type:text" json:"description"`
	Role             AgentRole        `gorm:"size:32;not null" json:"role"`
	Personality      Personality      `gorm:"serializer:json;type:text" json:"personality"`
	Capabilities     []string         `gorm:"serializer:json;type:text" json:"capabilities"`
	SystemPrompt     string           `gorm:"type:text" json:"system_prompt"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	Settings         map[string]any   `gorm:"serializer:json;type:text" json:"settings"`
	TrainingExamples []map[string]any `gorm:"serializer:json;type:text" json:"training_examples"`
	Statistics       AgentStatistics  `gorm:"serializer:json;type:text" json:"statistics"`
	CreatedAt        time.Time        `gorm:"index:idx_agents_user_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Agent) TableName() string { return "ai_agents" }

// TaskStatus is open-ended: only the two initial values are assigned here,
// later ones belong to the execution machinery.
type TaskStatus string

const (
	TaskPending          TaskStatus = "pending"
	TaskRequiresApproval TaskStatus = "requires_approval"
)

// InitialTaskStatus derives a new task's status from the approval flag alone.
func InitialTaskStatus(requiresApproval bool) TaskStatus {
	if requiresApproval {
		return TaskRequiresApproval
	}
	return TaskPending
}

// ParsedIntent is the intent parser's output, kept byte-for-byte.
type ParsedIntent json.RawMessage

func (p ParsedIntent) MarshalJSON() ([]byte, error) { return rawOrNull(p), nil }

func (p *ParsedIntent) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

// ExecutionPlan is the plan generator's output, kept byte-for-byte.
type ExecutionPlan json.RawMessage

func (p ExecutionPlan) MarshalJSON() ([]byte, error) { return rawOrNull(p), nil }

func (p *ExecutionPlan) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

// Tasks
type Task struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	UserID           string         `gorm:"size:128;index:idx_tasks_user_created,priority:1;not null" json:"user_id"`
	AgentID          *string        `gorm:"size:36;index" json:"agent_id"`
	Instruction      string         `gorm:"type:text;not null" json:"instruction"`
	ParsedIntent     ParsedIntent   `gorm:"serializer:json;type:text;not null" json:"parsed_intent"`
	ExecutionPlan    ExecutionPlan  `gorm:"serializer:json;type:text;not null" json:"execution_plan"`
	Status           TaskStatus     `gorm:"size:32;index;not null" json:"status"`
	RequiresApproval bool           `gorm:"not null" json:"requires_approval"`
	Priority         int            `gorm:"not null" json:"priority"`
	ScheduledAt      *time.Time     `json:"scheduled_at"`
	Metadata         map[string]any `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedAt        time.Time      `gorm:"index:idx_tasks_user_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Audit trail
type SystemLog struct {
	ID        uint64         `gorm:"primaryKey" json:"id"`
	Level     string         `gorm:"size:16;not null" json:"level"`
	Message   string         `gorm:"size:255;not null" json:"message"`
	Context   string         `gorm:"size:64;index" json:"context"`
	UserID    string         `gorm:"size:128;index" json:"user_id"`
	AgentID   *string        `gorm:"size:36" json:"agent_id,omitempty"`
	TaskID    *string        `gorm:"size:36" json:"task_id,omitempty"`
	Metadata  map[string]any `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Runtime settings
type Setting struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text"`
}

// AllModels is the migration set.
var AllModels = []interface{}{
	&Agent{}, &Task{}, &SystemLog{}, &Setting{},
}
