package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
	"github.com/stake-plus/stratomai-agents/src/api/auth"
	"github.com/stake-plus/stratomai-agents/src/api/testutil"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []types.SystemLog
}

func (r *recordingAudit) Record(_ context.Context, e types.SystemLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func stepClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func asUser(id string) context.Context {
	return auth.WithPrincipal(context.Background(), id)
}

func TestCreateWithoutPersonalityStoresDefaults(t *testing.T) {
	db := testutil.NewDB(t)
	rec := &recordingAudit{}
	reg := NewRegistry(db, rec, WithClock(stepClock()))

	agent, err := reg.Create(asUser("user-1"), CreateInput{Name: "Inbox Zero", Role: types.RoleEmailAssistant})
	require.NoError(t, err)

	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, types.DefaultPersonality(), agent.Personality)
	assert.Equal(t, "You are a helpful email_assistant assistant.", agent.SystemPrompt)
	assert.True(t, agent.IsActive)
	assert.Equal(t, []string{}, agent.Capabilities)
	assert.Equal(t, types.AgentStatistics{}, agent.Statistics)
	assert.Nil(t, agent.Description)

	var stored types.Agent
	require.NoError(t, db.First(&stored, "id = ?", agent.ID).Error)
	assert.Equal(t, types.Personality{Tone: "professional", Language: "es", Verbosity: "balanced", Formality: "medium"}, stored.Personality)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, map[string]any{}, stored.Settings)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "Agent created", rec.entries[0].Message)
	assert.Equal(t, agent.ID, *rec.entries[0].AgentID)
	assert.Equal(t, map[string]any{"name": "Inbox Zero", "role": "email_assistant"}, rec.entries[0].Metadata)
}

func TestCreateKeepsSuppliedFields(t *testing.T) {
	reg := NewRegistry(testutil.NewDB(t), nil)
	desc := "  Keeps the <b>pipeline</b> clean "
	prompt := "You manage leads."

	agent, err := reg.Create(asUser("user-1"), CreateInput{
		Name:         "CRM helper",
		Description:  &desc,
		Role:         types.RoleCRMManager,
		Personality:  &types.Personality{Tone: "friendly", Language: "en"},
		Capabilities: []string{"crm", "email"},
		SystemPrompt: &prompt,
	})
	require.NoError(t, err)

	assert.Equal(t, "Keeps the pipeline clean", *agent.Description)
	assert.Equal(t, types.Personality{Tone: "friendly", Language: "en", Verbosity: "balanced", Formality: "medium"}, agent.Personality)
	assert.Equal(t, []string{"crm", "email"}, agent.Capabilities)
	assert.Equal(t, prompt, agent.SystemPrompt)
}

func TestCreateValidation(t *testing.T) {
	db := testutil.NewDB(t)
	rec := &recordingAudit{}
	reg := NewRegistry(db, rec)

	_, err := reg.Create(asUser("user-1"), CreateInput{Name: "ab", Role: "pilot"})
	require.Error(t, err)

	var v *apierr.ValidationError
	require.True(t, errors.As(err, &v))
	fields := map[string]bool{}
	for _, f := range v.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["role"])

	var count int64
	db.Model(&types.Agent{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, rec.entries)
}

func TestCreateRequiresPrincipal(t *testing.T) {
	reg := NewRegistry(testutil.NewDB(t), nil)
	_, err := reg.Create(context.Background(), CreateInput{Name: "Planner", Role: types.RoleScheduler})
	assert.True(t, errors.Is(err, apierr.ErrUnauthorized))

	_, err = reg.List(context.Background())
	assert.True(t, errors.Is(err, apierr.ErrUnauthorized))
}

func TestListIsOwnerScopedNewestFirst(t *testing.T) {
	reg := NewRegistry(testutil.NewDB(t), nil, WithClock(stepClock()))

	first, err := reg.Create(asUser("alice"), CreateInput{Name: "First", Role: types.RoleAnalyst})
	require.NoError(t, err)
	_, err = reg.Create(asUser("bob"), CreateInput{Name: "Bobs agent", Role: types.RoleAnalyst})
	require.NoError(t, err)
	second, err := reg.Create(asUser("alice"), CreateInput{Name: "Second", Role: types.RoleCustom})
	require.NoError(t, err)

	list, err := reg.List(asUser("alice"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	empty, err := reg.List(asUser("carol"))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestGetHidesOtherOwners(t *testing.T) {
	reg := NewRegistry(testutil.NewDB(t), nil)
	agent, err := reg.Create(asUser("alice"), CreateInput{Name: "Scheduler", Role: types.RoleScheduler})
	require.NoError(t, err)

	got, err := reg.Get(asUser("alice"), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)

	_, err = reg.Get(asUser("bob"), agent.ID)
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestCreateStoresFreeTextUnescaped(t *testing.T) {
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil)
	desc := `Tracks "Q3" leads & <i>follow-ups</i>`
	prompt := `Reply "yes" when x < 5 & y > 2. Don't guess.`

	agent, err := reg.Create(asUser("user-1"), CreateInput{
		Name:         "R&D O'Brien",
		Description:  &desc,
		Role:         types.RoleAnalyst,
		SystemPrompt: &prompt,
	})
	require.NoError(t, err)

	var stored types.Agent
	require.NoError(t, db.First(&stored, "id = ?", agent.ID).Error)
	assert.Equal(t, "R&D O'Brien", stored.Name)
	assert.Equal(t, `Tracks "Q3" leads & follow-ups`, *stored.Description)
	assert.Equal(t, prompt, stored.SystemPrompt)
}

func TestCreateMarkupOnlyNameIsRejected(t *testing.T) {
	reg := NewRegistry(testutil.NewDB(t), nil)

	_, err := reg.Create(asUser("user-1"), CreateInput{Name: "<b>a</b>", Role: types.RoleAnalyst})

	var v *apierr.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "name", v.Fields[0].Field)
}

func TestCreatePartialPersonalityFillsMissingFields(t *testing.T) {
	db := testutil.NewDB(t)
	reg := NewRegistry(db, nil)

	agent, err := reg.Create(asUser("user-1"), CreateInput{
		Name:        "Formal writer",
		Role:        types.RoleCustom,
		Personality: &types.Personality{Formality: "high"},
	})
	require.NoError(t, err)

	var stored types.Agent
	require.NoError(t, db.First(&stored, "id = ?", agent.ID).Error)
	assert.Equal(t, types.Personality{
		Tone:      "professional",
		Language:  "es",
		Verbosity: "balanced",
		Formality: "high",
	}, stored.Personality)
}
