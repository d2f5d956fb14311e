// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"errors"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for data persistence. Each accessor runs
// in its own transaction; there are no cross-call transactions.
type Store interface {
	// User operations
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error

	// Session operations
	GetActiveSession(ctx context.Context, userID string) (*domain.Session, error)
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionAgent(ctx context.Context, sessionID, agentName string) error

	// Message operations
	SaveMessage(ctx context.Context, message *domain.Message) error
	GetRecentVisibleMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Image operations
	SaveImage(ctx context.Context, image *domain.Image) error
	SaveImageInterpretation(ctx context.Context, imageID, interpretation string) error
	GetImage(ctx context.Context, imageID string) (*domain.Image, error)
	GetPendingImages(ctx context.Context, sessionID string) ([]domain.Image, error)

	// Medical record operations
	UpsertMedicalRecord(ctx context.Context, userID, field, value string) (string, error)
	GetMedicalHistory(ctx context.Context, userID string) ([]domain.MedicalRecord, error)

	// PurgeUser deletes all messages, images, sessions and medical
	// records belonging to the user in one transaction.
	PurgeUser(ctx context.Context, userID string) error

	// Lifecycle
	Close() error
}
