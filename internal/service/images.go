package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/llm"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
	"github.com/sweetebin/agent-hippocrates/internal/store"
)

// ProcessImages deduplicates the submitted payloads, interprets each
// unique image through the image interpreter, folds the aggregated
// interpretations into one system message and hands it to the session's
// current agent for a single combined response. A single image's
// failure is logged and skipped, never aborting its siblings.
func (s *Service) ProcessImages(ctx context.Context, externalID string, images []string) ([]domain.ChatTurn, int, error) {
	c, err := s.registry.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return nil, 0, err
	}

	progress := fmt.Sprintf("Processing %d images... Please wait.", len(images))
	if err := s.saveMessage(ctx, c.UserCtx.SessionID, domain.RoleAssistant, progress, true, nil); err != nil {
		log.Printf("ERROR: failed to save progress message: %v", err)
	}

	// Identical payload bytes submitted twice in one request are
	// processed once.
	seen := make(map[string]bool)
	var interpretations []string
	processed := 0
	for _, payload := range images {
		hash := payloadHash(payload)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		interpretation, err := s.interpretImage(ctx, c, payload)
		if err != nil {
			log.Printf("ERROR: failed to process image %s: %v", hash[:8], err)
			continue
		}
		interpretations = append(interpretations, interpretation)
		processed++

		if _, err := s.store.UpsertMedicalRecord(ctx, c.UserCtx.UserID, "image_"+hash[:12], interpretation); err != nil {
			log.Printf("ERROR: failed to record image interpretation: %v", err)
		}
	}

	if len(interpretations) == 0 {
		return nil, 0, fmt.Errorf("failed to process images: %w", ErrUpstream)
	}

	combined := llm.ChatMessage{
		Role: domain.RoleSystem,
		Content: fmt.Sprintf("Image analysis results:\n%s\n\nConsider these findings in your assessment.",
			strings.Join(interpretations, "\n\n")),
	}

	active, err := s.activeAgent(ctx, c)
	if err != nil {
		return nil, 0, err
	}
	turns, err := s.runTurn(ctx, c, active, []llm.ChatMessage{combined})
	if err != nil {
		return nil, 0, err
	}
	return turns, processed, nil
}

// interpretImage persists the image, runs the interpreter over it and
// attaches the resulting text.
func (s *Service) interpretImage(ctx context.Context, c *registry.Container, payload string) (string, error) {
	img := &domain.Image{
		ImageID:   store.NewID("img"),
		SessionID: c.UserCtx.SessionID,
		ImageData: payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveImage(ctx, img); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	result, err := s.runner.Run(ctx, c.Roster.Interpreter, c.Roster, []llm.ChatMessage{llm.ImageMessage(payload)})
	if err != nil {
		return "", fmt.Errorf("interpretation failed: %w", err)
	}

	interpretation := lastContent(result.Messages)
	if interpretation == "" {
		return "", fmt.Errorf("interpreter returned no content")
	}

	if err := s.store.SaveImageInterpretation(ctx, img.ImageID, interpretation); err != nil {
		return "", fmt.Errorf("failed to save interpretation: %w", err)
	}
	return interpretation, nil
}

// lastContent returns the content of the last non-empty message.
func lastContent(messages []llm.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

func payloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
