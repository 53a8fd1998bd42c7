// Package tasks turns free-text instructions into persisted tasks.
//
// A submission runs as one cancellable unit of work: validate, parse the
// intent, generate a plan from it, then insert the task. Any failure before
// the insert leaves nothing behind. The audit entry is written after the
// insert and cannot fail the submission.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/audit"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

const tracerName = "github.com/stake-plus/stratomai-agents/src/api/tasks"

type IntentParser interface {
	ParseInstruction(ctx context.Context, req aiengine.InstructionRequest) (types.ParsedIntent, error)
}

type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req aiengine.PlanRequest) (types.ExecutionPlan, error)
}

// Repository is the persistence the orchestrator needs; *Store implements it.
type Repository interface {
	Insert(ctx context.Context, task types.Task) (*types.Task, error)
	List(ctx context.Context, owner string, f Filter) ([]types.Task, error)
}

// AgentLookup resolves one of the caller's agents, failing with
// apierr.ErrNotFound for unknown or foreign ids.
type AgentLookup interface {
	Get(ctx context.Context, id string) (*types.Agent, error)
}

type Orchestrator struct {
	parser  IntentParser
	planner PlanGenerator
	store   Repository
	audit   audit.Recorder
	agents  AgentLookup
	metrics *metrics.Metrics
	log     *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Orchestrator)

// WithAgentLookup makes Submit reject agent ids the caller does not own.
func WithAgentLookup(l AgentLookup) Option { return func(o *Orchestrator) { o.agents = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func NewOrchestrator(parser IntentParser, planner PlanGenerator, store Repository, rec audit.Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		parser:  parser,
		planner: planner,
		store:   store,
		audit:   rec,
		log:     slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.audit == nil {
		o.audit = audit.Nop{}
	}
	o.log = o.log.With("component", "tasks")
	return o
}

// Submit runs the intake pipeline for the caller in ctx.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*types.Task, error) {
	ctx, span := o.tracer.Start(ctx, "tasks.submit")
	defer span.End()

	task, outcome, err := o.submit(ctx, in)
	o.metrics.TaskSubmitted(outcome)
	span.SetAttributes(attribute.String("task.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("task.status", string(task.Status)))
	return task, nil
}

func (o *Orchestrator) submit(ctx context.Context, in SubmitInput) (*types.Task, string, error) {
	owner, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, metrics.OutcomeUnauthorized, err
	}
	req, err := in.validate()
	if err != nil {
		return nil, metrics.OutcomeInvalid, err
	}
	if err := o.checkAgent(ctx, req.agentID); err != nil {
		if errors.Is(err, apierr.ErrValidation) {
			return nil, metrics.OutcomeInvalid, err
		}
		return nil, metrics.OutcomeInternal, err
	}

	intent, err := o.parseIntent(ctx, owner, req)
	if err != nil {
		return nil, upstreamOutcome(ctx), err
	}
	plan, err := o.generatePlan(ctx, owner, req, intent)
	if err != nil {
		return nil, upstreamOutcome(ctx), err
	}

	// A caller that went away while the engine was working gets no task.
	if err := ctx.Err(); err != nil {
		return nil, metrics.OutcomeCanceled, fmt.Errorf("submission aborted before persistence: %w", err)
	}

	stored, err := o.persist(ctx, owner, req, intent, plan)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, metrics.OutcomeCanceled, fmt.Errorf("submission aborted during persistence: %w", ctxErr)
		}
		return nil, metrics.OutcomeInternal, apierr.Internal("insert task", err)
	}

	o.log.Info("task created", "user_id", owner, "task_id", stored.ID, "status", stored.Status, "priority", stored.Priority)
	taskID := stored.ID
	o.audit.Record(ctx, types.SystemLog{
		Level:    audit.LevelInfo,
		Message:  "Task created",
		Context:  audit.ContextTasks,
		UserID:   owner,
		TaskID:   &taskID,
		Metadata: map[string]any{"instruction": stored.Instruction},
	})
	return stored, metrics.OutcomeCreated, nil
}

func (o *Orchestrator) checkAgent(ctx context.Context, agentID *string) error {
	if agentID == nil || o.agents == nil {
		return nil
	}
	if _, err := o.agents.Get(ctx, *agentID); err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return apierr.Invalid("agent_id", "agent not found")
		}
		return err
	}
	return nil
}

func (o *Orchestrator) parseIntent(ctx context.Context, owner string, req request) (types.ParsedIntent, error) {
	ctx, span := o.tracer.Start(ctx, "tasks.parse_intent")
	defer span.End()

	start := time.Now()
	intent, err := o.parser.ParseInstruction(ctx, aiengine.InstructionRequest{
		Instruction: req.instruction,
		UserID:      owner,
		AgentID:     req.agentID,
	})
	if err == nil && len(intent) == 0 {
		err = errors.New("empty intent")
	}
	o.metrics.EngineCall(string(apierr.StageParsing), time.Since(start), err)
	if err != nil {
		err = asUpstream(apierr.StageParsing, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent parsing failed")
		o.log.Warn("intent parsing failed", "user_id", owner, "err", err)
		return nil, err
	}
	return intent, nil
}

func (o *Orchestrator) generatePlan(ctx context.Context, owner string, req request, intent types.ParsedIntent) (types.ExecutionPlan, error) {
	ctx, span := o.tracer.Start(ctx, "tasks.generate_plan")
	defer span.End()

	start := time.Now()
	plan, err := o.planner.GeneratePlan(ctx, aiengine.PlanRequest{
		Instruction: req.instruction,
		UserID:      owner,
		Context:     aiengine.PlanContext{ParsedIntent: intent},
	})
	if err == nil && len(plan) == 0 {
		err = errors.New("empty plan")
	}
	o.metrics.EngineCall(string(apierr.StagePlanning), time.Since(start), err)
	if err != nil {
		err = asUpstream(apierr.StagePlanning, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan generation failed")
		o.log.Warn("plan generation failed", "user_id", owner, "err", err)
		return nil, err
	}
	return plan, nil
}

func (o *Orchestrator) persist(ctx context.Context, owner string, req request, intent types.ParsedIntent, plan types.ExecutionPlan) (*types.Task, error) {
	ctx, span := o.tracer.Start(ctx, "tasks.persist")
	defer span.End()

	stored, err := o.store.Insert(ctx, types.Task{
		UserID:           owner,
		AgentID:          req.agentID,
		Instruction:      req.instruction,
		ParsedIntent:     intent,
		ExecutionPlan:    plan,
		Status:           types.InitialTaskStatus(req.requiresApproval),
		RequiresApproval: req.requiresApproval,
		Priority:         req.priority,
		ScheduledAt:      req.scheduledAt,
		Metadata:         map[string]any{},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		o.log.Error("task insert failed", "user_id", owner, "err", err)
		return nil, err
	}
	return stored, nil
}

// List returns the caller's tasks, newest first.
func (o *Orchestrator) List(ctx context.Context, f Filter) ([]types.Task, error) {
	owner, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.List(ctx, owner, f)
	if err != nil {
		return nil, apierr.Internal("list tasks", err)
	}
	return tasks, nil
}

func asUpstream(stage apierr.Stage, err error) error {
	var up *apierr.UpstreamError
	if errors.As(err, &up) {
		return err
	}
	return &apierr.UpstreamError{Stage: stage, Err: err}
}

func upstreamOutcome(ctx context.Context) string {
	if ctx.Err() != nil {
		return metrics.OutcomeCanceled
	}
	return metrics.OutcomeUpstream
}
