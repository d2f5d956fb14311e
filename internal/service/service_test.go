package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
	"github.com/sweetebin/agent-hippocrates/internal/service"
	"github.com/sweetebin/agent-hippocrates/internal/store"
	"github.com/sweetebin/agent-hippocrates/internal/testutil"
)

type fixture struct {
	store   *store.SQLiteStore
	runner  *agent.MockRunner
	service *service.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := testutil.NewTestStore(t)
	models := agent.Models{
		Intake:     "model-intake",
		Specialist: "model-specialist",
		Vision:     "model-vision",
	}
	runner := agent.NewMockRunner()
	reg := registry.New(st, models)
	return &fixture{
		store:   st,
		runner:  runner,
		service: service.New(st, reg, runner, 10),
	}
}

func userMessage(content string) domain.InboundMessage {
	return domain.InboundMessage{Role: domain.RoleUser, Content: content}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sessionID, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	window, err := f.store.GetRecentVisibleMessages(ctx, sessionID, 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, domain.RoleAssistant, window[0].Role)
	assert.Contains(t, window[0].Content, "medical assistant")

	// Re-initializing keeps the same active session.
	again, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	assert.Equal(t, sessionID, again)
}

func TestHandleMessagePersistsTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.runner.EnqueueReply("When did the headaches start?")

	turns, err := f.service.HandleMessage(ctx, "tg-1001", userMessage("I keep getting headaches"))
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleAssistant, turns[0].Role)
	assert.Equal(t, "When did the headaches start?", turns[0].Content)

	// First contact runs as the intake agent with the fact preamble
	// followed by the just-saved user message.
	require.Len(t, f.runner.Calls, 1)
	call := f.runner.Calls[0]
	assert.Equal(t, agent.NameMedicalAssistant, call.Agent)
	require.NotEmpty(t, call.Messages)
	assert.Equal(t, domain.RoleSystem, call.Messages[0].Role)
	assert.Contains(t, call.Messages[0].Content, "no data recorded yet")
	last := call.Messages[len(call.Messages)-1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Equal(t, "I keep getting headaches", last.Content)

	// Both sides of the exchange are durable and visible.
	sessionID, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	window, err := f.store.GetRecentVisibleMessages(ctx, sessionID, 10)
	require.NoError(t, err)
	var contents []string
	for _, msg := range window {
		contents = append(contents, msg.Content)
	}
	assert.Contains(t, contents, "I keep getting headaches")
	assert.Contains(t, contents, "When did the headaches start?")
}

func TestHandleMessageIncludesRecordedFacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)

	user, err := f.store.GetUserByExternalID(ctx, "tg-1001")
	require.NoError(t, err)
	_, err = f.store.UpsertMedicalRecord(ctx, user.UserID, "weight", "80kg")
	require.NoError(t, err)

	f.runner.EnqueueReply("Noted.")
	_, err = f.service.HandleMessage(ctx, "tg-1001", userMessage("anything else you need?"))
	require.NoError(t, err)

	require.Len(t, f.runner.Calls, 1)
	assert.Contains(t, f.runner.Calls[0].Messages[0].Content, "- weight: 80kg")
}

func TestHandleMessageHandoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.runner.EnqueueHandoff("Your intake is complete.", agent.NameDoctor)

	turns, err := f.service.HandleMessage(ctx, "tg-1001", userMessage("please assess me"))
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Your intake is complete.", turns[0].Content)
	assert.Equal(t, fmt.Sprintf("Transferring you to %s...", agent.NameDoctor), turns[1].Content)

	// The handoff is durable: the next turn runs as the doctor.
	f.runner.EnqueueReply("Let's review your symptoms.")
	_, err = f.service.HandleMessage(ctx, "tg-1001", userMessage("ok"))
	require.NoError(t, err)
	require.Len(t, f.runner.Calls, 2)
	assert.Equal(t, agent.NameDoctor, f.runner.Calls[1].Agent)

	sessionID, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	session, err := f.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, agent.NameDoctor, session.CurrentAgent)

	// The transfer notice stays out of the visible window.
	window, err := f.store.GetRecentVisibleMessages(ctx, sessionID, 20)
	require.NoError(t, err)
	for _, msg := range window {
		assert.NotContains(t, msg.Content, "Transferred from")
	}
}

func TestHandleMessageRunnerError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.runner.EnqueueError(fmt.Errorf("upstream timeout"))

	_, err := f.service.HandleMessage(ctx, "tg-1001", userMessage("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent run failed")
	assert.True(t, errors.Is(err, service.ErrUpstream))
}

// sessionLoadFailStore fails every session load while delegating the
// rest to the real store.
type sessionLoadFailStore struct {
	store.Store
}

func (s *sessionLoadFailStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return nil, errors.New("connection reset")
}

func TestHandleMessageSessionLoadFailure(t *testing.T) {
	ctx := context.Background()
	st := &sessionLoadFailStore{Store: testutil.NewTestStore(t)}
	models := agent.Models{
		Intake:     "model-intake",
		Specialist: "model-specialist",
		Vision:     "model-vision",
	}
	runner := agent.NewMockRunner()
	svc := service.New(st, registry.New(st, models), runner, 10)

	_, err := svc.HandleMessage(ctx, "tg-1001", userMessage("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load session")
	assert.False(t, errors.Is(err, service.ErrUpstream))

	// The turn never reaches the model on a store failure.
	assert.Empty(t, runner.Calls)
}

func TestProcessImagesDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sessionID, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)

	// One interpretation for the unique payload, then the combined
	// assessment turn.
	f.runner.EnqueueReply("Chest x-ray, lungs clear.")
	f.runner.EnqueueReply("The x-ray shows no abnormalities.")

	payload := "base64-xray-payload"
	turns, processed, err := f.service.ProcessImages(ctx, "tg-1001", []string{payload, payload})
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.NotEmpty(t, turns)
	assert.Equal(t, "The x-ray shows no abnormalities.", turns[len(turns)-1].Content)

	// The duplicate payload produced exactly one interpreter run.
	require.Len(t, f.runner.Calls, 2)
	assert.Equal(t, agent.NameImageInterpreter, f.runner.Calls[0].Agent)
	assert.Equal(t, agent.NameMedicalAssistant, f.runner.Calls[1].Agent)
	require.Len(t, f.runner.Calls[1].Messages, 1)
	assert.Contains(t, f.runner.Calls[1].Messages[0].Content, "Image analysis results:")
	assert.Contains(t, f.runner.Calls[1].Messages[0].Content, "Chest x-ray, lungs clear.")

	// The interpretation is attached to the stored image and folded
	// into the medical record set.
	pending, err := f.store.GetPendingImages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	user, err := f.store.GetUserByExternalID(ctx, "tg-1001")
	require.NoError(t, err)
	records, err := f.store.GetMedicalHistory(ctx, user.UserID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Chest x-ray, lungs clear.", records[0].Value)
}

func TestProcessImagesPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.runner.EnqueueError(fmt.Errorf("vision model unavailable"))
	f.runner.EnqueueReply("MRI scan, no lesions.")
	f.runner.EnqueueReply("The MRI looks normal.")

	turns, processed, err := f.service.ProcessImages(ctx, "tg-1001", []string{"payload-a", "payload-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.NotEmpty(t, turns)
	assert.Equal(t, "The MRI looks normal.", turns[len(turns)-1].Content)
}

func TestProcessImagesAllFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.runner.EnqueueError(fmt.Errorf("vision model unavailable"))

	_, processed, err := f.service.ProcessImages(ctx, "tg-1001", []string{"payload-a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUpstream))
	assert.Equal(t, 0, processed)
}

func TestClearThenReinitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	f.runner.EnqueueReply("Noted.")
	_, err = f.service.HandleMessage(ctx, "tg-1001", userMessage("I weigh 80kg"))
	require.NoError(t, err)

	require.NoError(t, f.service.Clear(ctx, "tg-1001"))

	second, err := f.service.Initialize(ctx, "tg-1001")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The new session starts with only the fresh greeting.
	window, err := f.store.GetRecentVisibleMessages(ctx, second, 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, domain.RoleAssistant, window[0].Role)
}

func TestClearUnknownUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.Clear(context.Background(), "tg-never-seen"))
}
