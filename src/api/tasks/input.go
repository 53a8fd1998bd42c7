package tasks

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
)

const (
	MinInstructionLength = 10
	MinPriority          = 1
	MaxPriority          = 10
	DefaultPriority      = 5
)

// SubmitInput is a task request. Pointer fields are optional.
type SubmitInput struct {
	Instruction      string  `json:"instruction"`
	AgentID          *string `json:"agent_id"`
	Priority         *int    `json:"priority"`
	RequiresApproval *bool   `json:"requires_approval"`
	ScheduledAt      *string `json:"scheduled_at"`
}

// request is a SubmitInput that passed validation.
type request struct {
	instruction      string
	agentID          *string
	priority         int
	requiresApproval bool
	scheduledAt      *time.Time
}

func (in SubmitInput) validate() (request, error) {
	v := &apierr.ValidationError{}
	req := request{
		instruction: in.Instruction,
		priority:    DefaultPriority,
	}

	if err := ValidateInstruction(in.Instruction); err != nil {
		v.Add("instruction", "Instruction must be at least %d characters", MinInstructionLength)
	}

	if in.AgentID != nil {
		id, err := uuid.Parse(strings.TrimSpace(*in.AgentID))
		if err != nil {
			v.Add("agent_id", "must be a valid UUID")
		} else {
			s := id.String()
			req.agentID = &s
		}
	}

	if in.Priority != nil {
		if *in.Priority < MinPriority || *in.Priority > MaxPriority {
			v.Add("priority", "must be between %d and %d", MinPriority, MaxPriority)
		}
		req.priority = *in.Priority
	}

	if in.RequiresApproval != nil {
		req.requiresApproval = *in.RequiresApproval
	}

	if in.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339Nano, *in.ScheduledAt)
		if err != nil {
			v.Add("scheduled_at", "must be an ISO-8601 datetime")
		} else {
			at = at.UTC()
			req.scheduledAt = &at
		}
	}

	if err := v.OrNil(); err != nil {
		return request{}, err
	}
	return req, nil
}

// ValidateInstruction enforces the minimum instruction length.
func ValidateInstruction(s string) error {
	if utf8.RuneCountInString(s) < MinInstructionLength {
		return apierr.Invalid("instruction", "Instruction must be at least %d characters", MinInstructionLength)
	}
	return nil
}
