// Package service implements the orchestration layer: session
// resolution, context assembly, agent runs, handoff bookkeeping and the
// image pipeline.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
	"github.com/sweetebin/agent-hippocrates/internal/store"
)

const greetingMessage = "Hello! I'm your medical assistant. Tell me about your symptoms and I'll help you prepare for a consultation."

// ErrUpstream marks a failure of the model backend, as opposed to a
// store or validation failure.
var ErrUpstream = errors.New("model backend failure")

// Service wires the registry, store and runner together.
type Service struct {
	store         store.Store
	registry      *registry.Registry
	runner        agent.Runner
	historyWindow int
}

// New creates a new service.
func New(st store.Store, reg *registry.Registry, runner agent.Runner, historyWindow int) *Service {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Service{
		store:         st,
		registry:      reg,
		runner:        runner,
		historyWindow: historyWindow,
	}
}

// Initialize ensures the user has an active session and persists the
// greeting, returning the session id.
func (s *Service) Initialize(ctx context.Context, externalID string) (string, error) {
	c, err := s.registry.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return "", err
	}

	greeting := &domain.Message{
		MessageID:     store.NewID("msg"),
		SessionID:     c.UserCtx.SessionID,
		Role:          domain.RoleAssistant,
		Content:       greetingMessage,
		VisibleToUser: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, greeting); err != nil {
		return "", fmt.Errorf("failed to save greeting: %w", err)
	}
	return c.UserCtx.SessionID, nil
}

// Clear purges all durable data for the user and evicts the in-memory
// container.
func (s *Service) Clear(ctx context.Context, externalID string) error {
	return s.registry.EvictAndPurge(ctx, externalID)
}

// saveMessage persists one conversation message with the given
// visibility and metadata.
func (s *Service) saveMessage(ctx context.Context, sessionID, role, content string, visible bool, meta *domain.MessageMetadata) error {
	var metadata json.RawMessage
	if meta != nil {
		metadata, _ = json.Marshal(meta)
	}
	msg := &domain.Message{
		MessageID:     store.NewID("msg"),
		SessionID:     sessionID,
		Role:          role,
		Content:       content,
		VisibleToUser: visible,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
	return s.store.SaveMessage(ctx, msg)
}

// activeAgent resolves the session's persisted current agent against
// the roster. Empty or unknown agent names fall back to the intake
// agent inside Resolve; a store failure propagates.
func (s *Service) activeAgent(ctx context.Context, c *registry.Container) (*agent.Agent, error) {
	session, err := s.store.GetSession(ctx, c.UserCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return c.Roster.Resolve(session.CurrentAgent), nil
}
