package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/stratomai-agents/src/api/aiengine"
	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/audit"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
	"github.com/stake-plus/stratomai-agents/src/api/metrics"
	"github.com/stake-plus/stratomai-agents/src/api/testutil"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

const (
	madrid     = "Book a flight to Madrid next week"
	testIntent = `{"action":"book_flight","entities":{"destination":"Madrid"},"confidence":0.92}`
	testPlan   = `{"steps":[{"step_index":0,"step_name":"Search flights","action":"search"}],"total_steps":1}`
)

type fakeEngine struct {
	parseCalls atomic.Int32
	planCalls  atomic.Int32

	parseErr error
	planErr  error
	onParse  func()

	mu       sync.Mutex
	lastPlan aiengine.PlanRequest
	lastPars aiengine.InstructionRequest
}

func (f *fakeEngine) ParseInstruction(_ context.Context, req aiengine.InstructionRequest) (types.ParsedIntent, error) {
	f.parseCalls.Add(1)
	f.mu.Lock()
	f.lastPars = req
	f.mu.Unlock()
	if f.onParse != nil {
		f.onParse()
	}
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return types.ParsedIntent(testIntent), nil
}

func (f *fakeEngine) GeneratePlan(_ context.Context, req aiengine.PlanRequest) (types.ExecutionPlan, error) {
	f.planCalls.Add(1)
	f.mu.Lock()
	f.lastPlan = req
	f.mu.Unlock()
	if f.planErr != nil {
		return nil, f.planErr
	}
	return types.ExecutionPlan(testPlan), nil
}

func (f *fakeEngine) calls() int { return int(f.parseCalls.Load() + f.planCalls.Load()) }

type recordingAudit struct {
	mu      sync.Mutex
	entries []types.SystemLog
}

func (r *recordingAudit) Record(_ context.Context, e types.SystemLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type failingStore struct{ Repository }

func (failingStore) Insert(context.Context, types.Task) (*types.Task, error) {
	return nil, errors.New("database is locked")
}

type fixture struct {
	engine *fakeEngine
	store  *Store
	audit  *recordingAudit
	orch   *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	f := &fixture{engine: &fakeEngine{}, store: newTestStore(t), audit: &recordingAudit{}}
	f.orch = NewOrchestrator(f.engine, f.engine, f.store, f.audit, opts...)
	return f
}

func (f *fixture) count(t *testing.T, owner string) int {
	list, err := f.store.List(context.Background(), owner, Filter{})
	require.NoError(t, err)
	return len(list)
}

func asUser(id string) context.Context { return auth.WithPrincipal(context.Background(), id) }

func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestSubmitScenarioA(t *testing.T) {
	f := newFixture(t)

	task, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid, RequiresApproval: boolPtr(false)})
	require.NoError(t, err)

	assert.Equal(t, types.TaskPending, task.Status)
	assert.False(t, task.RequiresApproval)
	assert.Equal(t, 5, task.Priority)
	assert.Equal(t, map[string]any{}, task.Metadata)
	assert.Nil(t, task.ScheduledAt)
	assert.Nil(t, task.AgentID)
	assert.Equal(t, "user-1", task.UserID)
	assert.Equal(t, madrid, task.Instruction)
	assert.JSONEq(t, testIntent, string(task.ParsedIntent))
	assert.JSONEq(t, testPlan, string(task.ExecutionPlan))
	assert.Equal(t, 1, f.count(t, "user-1"))
}

func TestSubmitScenarioB(t *testing.T) {
	f := newFixture(t)

	task, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid, RequiresApproval: boolPtr(true)})
	require.NoError(t, err)

	assert.Equal(t, types.TaskRequiresApproval, task.Status)
	assert.True(t, task.RequiresApproval)
}

func TestInitialStatusDependsOnlyOnFlag(t *testing.T) {
	cases := []struct {
		name string
		flag *bool
		want types.TaskStatus
	}{
		{"absent", nil, types.TaskPending},
		{"false", boolPtr(false), types.TaskPending},
		{"true", boolPtr(true), types.TaskRequiresApproval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			task, err := f.orch.Submit(asUser("u"), SubmitInput{
				Instruction:      madrid,
				RequiresApproval: tc.flag,
				Priority:         intPtr(9),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, task.Status)
		})
	}
}

func TestSubmitScenarioCParseFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.parseErr = &apierr.UpstreamError{Stage: apierr.StageParsing, StatusCode: 500}

	task, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid})
	require.Error(t, err)
	assert.Nil(t, task)

	var up *apierr.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, apierr.StageParsing, up.Stage)
	assert.Equal(t, int32(0), f.engine.planCalls.Load())
	assert.Zero(t, f.count(t, "user-1"))
	assert.Empty(t, f.audit.entries)
}

func TestSubmitPlanFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.engine.planErr = errors.New("connection reset by peer")

	_, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid})

	var up *apierr.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, apierr.StagePlanning, up.Stage)
	assert.Equal(t, "Failed to generate execution plan", up.PublicMessage())
	assert.Equal(t, int32(1), f.engine.parseCalls.Load())
	assert.Zero(t, f.count(t, "user-1"))
}

func TestSubmitScenarioDShortInstruction(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: "short"})

	var v *apierr.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "instruction", v.Fields[0].Field)
	assert.Zero(t, f.engine.calls())
	assert.Zero(t, f.count(t, "user-1"))
}

func TestSubmitPriorityRange(t *testing.T) {
	for _, p := range []int{0, 11, -3} {
		f := newFixture(t)
		_, err := f.orch.Submit(asUser("u"), SubmitInput{Instruction: madrid, Priority: intPtr(p)})
		assert.True(t, errors.Is(err, apierr.ErrValidation), "priority %d", p)
		assert.Zero(t, f.engine.calls())
	}
	for _, p := range []int{1, 10} {
		f := newFixture(t)
		task, err := f.orch.Submit(asUser("u"), SubmitInput{Instruction: madrid, Priority: intPtr(p)})
		require.NoError(t, err)
		assert.Equal(t, p, task.Priority)
	}
}

func TestSubmitRejectsMalformedFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Submit(asUser("u"), SubmitInput{
		Instruction: madrid,
		AgentID:     strPtr("not-a-uuid"),
		ScheduledAt: strPtr("next tuesday"),
	})

	var v *apierr.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Len(t, v.Fields, 2)
	assert.Zero(t, f.engine.calls())
}

func TestSubmitRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Submit(context.Background(), SubmitInput{Instruction: madrid})
	assert.True(t, errors.Is(err, apierr.ErrUnauthorized))
	assert.Zero(t, f.engine.calls())
}

func TestSubmitThreadsRequestIntoEngine(t *testing.T) {
	f := newFixture(t)
	agentID := "0b8f6c2e-9a57-4d0e-9a43-3c8a3f1b2d11"

	task, err := f.orch.Submit(asUser("user-1"), SubmitInput{
		Instruction: madrid,
		AgentID:     &agentID,
		ScheduledAt: strPtr("2026-11-02T09:00:00+01:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, madrid, f.engine.lastPars.Instruction)
	assert.Equal(t, "user-1", f.engine.lastPars.UserID)
	assert.Equal(t, agentID, *f.engine.lastPars.AgentID)
	assert.Equal(t, "user-1", f.engine.lastPlan.UserID)
	assert.JSONEq(t, testIntent, string(f.engine.lastPlan.Context.ParsedIntent))

	assert.Equal(t, agentID, *task.AgentID)
	require.NotNil(t, task.ScheduledAt)
	assert.Equal(t, "2026-11-02T08:00:00Z", task.ScheduledAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
}

func TestSubmitAbortsWhenCallerGoesAway(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(asUser("user-1"))
	f.engine.onParse = cancel

	_, err := f.orch.Submit(ctx, SubmitInput{Instruction: madrid})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.count(t, "user-1"))
}

func TestSubmitStoreFailureIsInternal(t *testing.T) {
	engine := &fakeEngine{}
	rec := &recordingAudit{}
	orch := NewOrchestrator(engine, engine, failingStore{}, rec)

	_, err := orch.Submit(asUser("u"), SubmitInput{Instruction: madrid})

	assert.True(t, errors.Is(err, apierr.ErrInternal))
	assert.Empty(t, rec.entries)
}

func TestSubmitRecordsAuditEntry(t *testing.T) {
	f := newFixture(t)

	task, err := f.orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid})
	require.NoError(t, err)

	require.Len(t, f.audit.entries, 1)
	e := f.audit.entries[0]
	assert.Equal(t, "Task created", e.Message)
	assert.Equal(t, audit.ContextTasks, e.Context)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, task.ID, *e.TaskID)
	assert.Equal(t, madrid, e.Metadata["instruction"])
}

func TestAuditWriteFailureDoesNotFailSubmission(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Migrator().DropTable(&types.SystemLog{}))
	w := audit.NewWriter(db, nil, "", nil, nil)
	engine := &fakeEngine{}
	orch := NewOrchestrator(engine, engine, NewStore(db), w)

	task, err := orch.Submit(asUser("user-1"), SubmitInput{Instruction: madrid})
	w.Wait()

	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
}

type ownedAgents map[string]string

func (o ownedAgents) Get(ctx context.Context, id string) (*types.Agent, error) {
	owner, _ := auth.PrincipalFrom(ctx)
	if o[id] != owner {
		return nil, apierr.NotFound("agent " + id)
	}
	return &types.Agent{ID: id, UserID: owner}, nil
}

func TestSubmitRejectsForeignAgent(t *testing.T) {
	agentID := "4c7b1a52-2f0e-4d6a-8f5c-1a2b3c4d5e6f"
	f := newFixture(t, WithAgentLookup(ownedAgents{agentID: "alice"}))

	_, err := f.orch.Submit(asUser("bob"), SubmitInput{Instruction: madrid, AgentID: &agentID})
	var v *apierr.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "agent_id", v.Fields[0].Field)
	assert.Zero(t, f.engine.calls())

	task, err := f.orch.Submit(asUser("alice"), SubmitInput{Instruction: madrid, AgentID: &agentID})
	require.NoError(t, err)
	assert.Equal(t, agentID, *task.AgentID)
}

func TestListIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Submit(asUser("alice"), SubmitInput{Instruction: madrid})
	require.NoError(t, err)
	_, err = f.orch.Submit(asUser("bob"), SubmitInput{Instruction: madrid, RequiresApproval: boolPtr(true)})
	require.NoError(t, err)

	list, err := f.orch.List(asUser("alice"), Filter{Status: types.TaskRequiresApproval})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.orch.List(asUser("bob"), Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].UserID)

	_, err = f.orch.List(context.Background(), Filter{})
	assert.True(t, errors.Is(err, apierr.ErrUnauthorized))
}

func TestSubmitCountsOutcomes(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, WithMetrics(m))

	_, _ = f.orch.Submit(asUser("u"), SubmitInput{Instruction: madrid})
	_, _ = f.orch.Submit(asUser("u"), SubmitInput{Instruction: "tiny"})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "stratomai_tasks_submitted_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			found[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, found[metrics.OutcomeCreated])
	assert.Equal(t, 1.0, found[metrics.OutcomeInvalid])
}
