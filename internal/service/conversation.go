package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/llm"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
)

// HandleMessage processes one conversational turn: persist the inbound
// message, assemble the bounded context, run the active agent and
// persist everything it produced, applying a handoff when the model
// ended the turn at a different agent.
func (s *Service) HandleMessage(ctx context.Context, externalID string, inbound domain.InboundMessage) ([]domain.ChatTurn, error) {
	c, err := s.registry.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return nil, err
	}

	meta := &domain.MessageMetadata{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := s.saveMessage(ctx, c.UserCtx.SessionID, inbound.Role, inbound.Content, true, meta); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	active, err := s.activeAgent(ctx, c)
	if err != nil {
		return nil, err
	}

	// The window already contains the just-saved inbound message.
	window, err := s.assembleContext(ctx, c.UserCtx)
	if err != nil {
		return nil, err
	}

	return s.runTurn(ctx, c, active, window)
}

// runTurn invokes the runner and persists its result. Handoff
// bookkeeping failures are logged but never discard the computed
// response.
func (s *Service) runTurn(ctx context.Context, c *registry.Container, active *agent.Agent, window []llm.ChatMessage) ([]domain.ChatTurn, error) {
	result, err := s.runner.Run(ctx, active, c.Roster, window)
	if err != nil {
		return nil, fmt.Errorf("agent run failed: %w: %v", ErrUpstream, err)
	}

	turns := s.persistRunMessages(ctx, c.UserCtx.SessionID, active.Name, result.Messages)

	if result.Agent != nil && result.Agent.Name != active.Name {
		turns = append(turns, s.applyHandoff(ctx, c.UserCtx.SessionID, active.Name, result.Agent.Name))
	}
	return turns, nil
}

// persistRunMessages saves every message the model produced, tool rows
// and empty-content rows hidden, and returns the visible turns.
func (s *Service) persistRunMessages(ctx context.Context, sessionID, agentName string, messages []llm.ChatMessage) []domain.ChatTurn {
	turns := make([]domain.ChatTurn, 0, len(messages))
	for _, msg := range messages {
		visible := msg.Role != domain.RoleTool && msg.Content != ""
		meta := &domain.MessageMetadata{
			Agent:     agentName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.saveMessage(ctx, sessionID, msg.Role, msg.Content, visible, meta); err != nil {
			log.Printf("ERROR: failed to save agent message: %v", err)
		}
		if visible {
			turns = append(turns, domain.ChatTurn{Role: msg.Role, Content: msg.Content})
		}
	}
	return turns
}

// applyHandoff records the transfer: one non-visible system message
// documenting it, the session's current agent updated for the next
// request, and a synthetic visible notice turn for the client.
func (s *Service) applyHandoff(ctx context.Context, sessionID, from, to string) domain.ChatTurn {
	now := time.Now().UTC().Format(time.RFC3339)
	meta := &domain.MessageMetadata{
		Timestamp:   now,
		HandoffFrom: from,
		HandoffTo:   to,
	}
	notice := fmt.Sprintf("Transferred from %s to %s", from, to)
	if err := s.saveMessage(ctx, sessionID, domain.RoleSystem, notice, false, meta); err != nil {
		log.Printf("ERROR: failed to save transfer notice: %v", err)
	}

	if err := s.store.UpdateSessionAgent(ctx, sessionID, to); err != nil {
		log.Printf("ERROR: failed to update session agent: %v", err)
	}

	return domain.ChatTurn{
		Role:    domain.RoleAssistant,
		Content: fmt.Sprintf("Transferring you to %s...", to),
	}
}
