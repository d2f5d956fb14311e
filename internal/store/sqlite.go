package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
)

// Compile-time check to ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			current_agent TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_interaction DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			visible_to_user INTEGER NOT NULL DEFAULT 1,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS images (
			image_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			image_data TEXT NOT NULL,
			interpretation TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_session ON images(session_id, processed)`,
		`CREATE TABLE IF NOT EXISTS medical_records (
			record_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, field),
			FOREIGN KEY (user_id) REFERENCES users(user_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success and rolling
// back on any failure.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// NewID returns a prefixed identifier for a new entity.
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// GetUserByExternalID retrieves a user by the client-supplied id.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, external_id, created_at FROM users WHERE external_id = ?`,
		externalID).Scan(&user.UserID, &user.ExternalID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, external_id, created_at) VALUES (?, ?, ?)`,
		user.UserID, user.ExternalID, user.CreatedAt)
	return err
}

// GetActiveSession retrieves the active session for a user.
func (s *SQLiteStore) GetActiveSession(ctx context.Context, userID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, is_active, current_agent, created_at, last_interaction
		 FROM sessions WHERE user_id = ? AND is_active = 1`,
		userID).Scan(&session.SessionID, &session.UserID, &session.IsActive,
		&session.CurrentAgent, &session.CreatedAt, &session.LastInteraction)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, is_active, current_agent, created_at, last_interaction
		 FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &session.IsActive,
		&session.CurrentAgent, &session.CreatedAt, &session.LastInteraction)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession creates a new active session, deactivating any prior
// active sessions for the user in the same transaction.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`,
			session.UserID); err != nil {
			return fmt.Errorf("failed to deactivate sessions: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (session_id, user_id, is_active, current_agent, created_at, last_interaction)
			 VALUES (?, ?, 1, ?, ?, ?)`,
			session.SessionID, session.UserID, session.CurrentAgent,
			session.CreatedAt, session.LastInteraction)
		return err
	})
}

// UpdateSessionAgent records the session's current agent so the next
// request resumes at the correct one.
func (s *SQLiteStore) UpdateSessionAgent(ctx context.Context, sessionID, agentName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_agent = ? WHERE session_id = ?`,
		agentName, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMessage appends a message and refreshes the session's
// last-interaction timestamp in the same transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, message *domain.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var metadata sql.NullString
		if len(message.Metadata) > 0 {
			metadata = sql.NullString{String: string(message.Metadata), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, session_id, role, content, visible_to_user, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			message.MessageID, message.SessionID, message.Role, message.Content,
			message.VisibleToUser, metadata, message.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_interaction = ? WHERE session_id = ?`,
			time.Now().UTC(), message.SessionID)
		return err
	})
}

// GetRecentVisibleMessages returns the most recent visible, non-tool,
// non-empty messages in chronological order. The query retrieves
// descending by creation time bounded by limit, then the slice is
// reversed for delivery.
func (s *SQLiteStore) GetRecentVisibleMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, visible_to_user, metadata, created_at
		 FROM messages
		 WHERE session_id = ? AND visible_to_user = 1 AND role != 'tool'
		   AND content IS NOT NULL AND content != ''
		 ORDER BY created_at DESC, message_id DESC
		 LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var msg domain.Message
	var content, metadata sql.NullString
	if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &content,
		&msg.VisibleToUser, &metadata, &msg.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	if content.Valid {
		msg.Content = content.String
	}
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	return msg, nil
}

// SaveImage stores a new unprocessed image.
func (s *SQLiteStore) SaveImage(ctx context.Context, image *domain.Image) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (image_id, session_id, image_data, processed, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		image.ImageID, image.SessionID, image.ImageData, image.CreatedAt)
	return err
}

// SaveImageInterpretation attaches an interpretation and marks the
// image processed. Re-processing an already processed image overwrites
// the interpretation; a missing image id returns ErrNotFound.
func (s *SQLiteStore) SaveImageInterpretation(ctx context.Context, imageID, interpretation string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE images SET interpretation = ?, processed = 1 WHERE image_id = ?`,
		interpretation, imageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImage retrieves an image by ID.
func (s *SQLiteStore) GetImage(ctx context.Context, imageID string) (*domain.Image, error) {
	var img domain.Image
	var interpretation sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT image_id, session_id, image_data, interpretation, processed, created_at
		 FROM images WHERE image_id = ?`,
		imageID).Scan(&img.ImageID, &img.SessionID, &img.ImageData,
		&interpretation, &img.Processed, &img.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if interpretation.Valid {
		img.Interpretation = interpretation.String
	}
	return &img, nil
}

// GetPendingImages returns unprocessed images for a session.
func (s *SQLiteStore) GetPendingImages(ctx context.Context, sessionID string) ([]domain.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_id, session_id, image_data, interpretation, processed, created_at
		 FROM images WHERE session_id = ? AND processed = 0 ORDER BY created_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		var interpretation sql.NullString
		if err := rows.Scan(&img.ImageID, &img.SessionID, &img.ImageData,
			&interpretation, &img.Processed, &img.CreatedAt); err != nil {
			return nil, err
		}
		if interpretation.Valid {
			img.Interpretation = interpretation.String
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// UpsertMedicalRecord updates the value for (user, field) in place, or
// inserts a new row if the field does not exist yet.
func (s *SQLiteStore) UpsertMedicalRecord(ctx context.Context, userID, field, value string) (string, error) {
	recordID := ""
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT record_id FROM medical_records WHERE user_id = ? AND field = ?`,
			userID, field).Scan(&recordID)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE medical_records SET value = ? WHERE record_id = ?`,
				value, recordID)
			return err
		}
		if err != sql.ErrNoRows {
			return err
		}
		recordID = NewID("rec")
		_, err = tx.ExecContext(ctx,
			`INSERT INTO medical_records (record_id, user_id, field, value, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			recordID, userID, field, value, time.Now().UTC())
		return err
	})
	if err != nil {
		return "", err
	}
	return recordID, nil
}

// GetMedicalHistory returns all medical records for a user ordered by
// creation time.
func (s *SQLiteStore) GetMedicalHistory(ctx context.Context, userID string) ([]domain.MedicalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, user_id, field, value, created_at
		 FROM medical_records WHERE user_id = ? ORDER BY created_at, record_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MedicalRecord
	for rows.Next() {
		var rec domain.MedicalRecord
		if err := rows.Scan(&rec.RecordID, &rec.UserID, &rec.Field, &rec.Value, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeUser deletes all data belonging to the user in one transaction:
// messages and images through the user's sessions, then the sessions,
// then the medical records.
func (s *SQLiteStore) PurgeUser(ctx context.Context, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id IN (SELECT session_id FROM sessions WHERE user_id = ?)`,
			userID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM images WHERE session_id IN (SELECT session_id FROM sessions WHERE user_id = ?)`,
			userID); err != nil {
			return fmt.Errorf("failed to delete images: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM medical_records WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to delete medical records: %w", err)
		}
		return nil
	})
}
