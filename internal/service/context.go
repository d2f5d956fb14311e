package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/llm"
)

// assembleContext builds the bounded model input for one turn: a
// system fact-context message followed by the most recent visible
// conversation window in chronological order. The fact context is
// rebuilt from the full medical record set every turn so the model
// always sees facts recorded by earlier tool calls; older messages
// silently drop out of the window but stay in durable history.
func (s *Service) assembleContext(ctx context.Context, userCtx domain.UserContext) ([]llm.ChatMessage, error) {
	records, err := s.store.GetMedicalHistory(ctx, userCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get medical history: %w", err)
	}

	window, err := s.store.GetRecentVisibleMessages(ctx, userCtx.SessionID, s.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(window)+1)
	messages = append(messages, llm.ChatMessage{
		Role:    domain.RoleSystem,
		Content: factContext(records),
	})
	for _, msg := range window {
		messages = append(messages, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return messages, nil
}

// factContext renders the medical record set as the per-turn system
// preamble.
func factContext(records []domain.MedicalRecord) string {
	if len(records) == 0 {
		return "Patient data: no data recorded yet."
	}

	var b strings.Builder
	b.WriteString("Patient data:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s: %s\n", rec.Field, rec.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}
