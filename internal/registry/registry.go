// Package registry maps external user ids to in-memory per-user
// orchestration state. One container exists per external id; the
// registry owns the creation lock.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/store"
)

// Container is the per-user orchestration state: the cached user
// context snapshot and the agent roster bound to it.
type Container struct {
	UserCtx domain.UserContext
	Roster  *agent.Roster
}

// Registry resolves containers under a single process-wide lock. The
// lock is held for the whole check-then-create sequence so two
// concurrent first contacts for the same user cannot both construct a
// container.
type Registry struct {
	mu         sync.Mutex
	containers map[string]*Container

	store  store.Store
	models agent.Models
}

// New creates an empty registry.
func New(st store.Store, models agent.Models) *Registry {
	return &Registry{
		containers: make(map[string]*Container),
		store:      st,
		models:     models,
	}
}

// ResolveOrCreate returns the container for the external user id,
// creating the user row, an active session and the bound roster on
// first contact. An existing active session is reused rather than
// replaced. Nothing is cached when any store call fails.
func (r *Registry) ResolveOrCreate(ctx context.Context, externalID string) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[externalID]; ok {
		return c, nil
	}

	user, err := r.store.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		user = &domain.User{
			UserID:     store.NewID("usr"),
			ExternalID: externalID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := r.store.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		log.Printf("created user %s for external id %s", user.UserID, externalID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	session, err := r.store.GetActiveSession(ctx, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		session = &domain.Session{
			SessionID:       store.NewID("sess"),
			UserID:          user.UserID,
			IsActive:        true,
			CurrentAgent:    agent.NameMedicalAssistant,
			CreatedAt:       now,
			LastInteraction: now,
		}
		if err := r.store.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Printf("created session %s for user %s", session.SessionID, user.UserID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}

	userCtx := domain.UserContext{
		UserID:     user.UserID,
		SessionID:  session.SessionID,
		ExternalID: externalID,
	}
	c := &Container{
		UserCtx: userCtx,
		Roster:  agent.NewRoster(r.store, userCtx, r.models),
	}
	r.containers[externalID] = c
	return c, nil
}

// EvictAndPurge deletes all durable data for the user in one
// transaction and then removes the cached container. A purge failure
// leaves both store and cache untouched; a user with no data is a
// no-op success.
func (r *Registry) EvictAndPurge(ctx context.Context, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.store.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		delete(r.containers, externalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if err := r.store.PurgeUser(ctx, user.UserID); err != nil {
		return fmt.Errorf("failed to purge user data: %w", err)
	}
	delete(r.containers, externalID)
	log.Printf("cleared all data for external id %s", externalID)
	return nil
}
