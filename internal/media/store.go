package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/clipcast/internal/database"
)

const columns = `id, owner_id, backend, bucket, object_key, file_name, mime_type, size,
	provenance, prompt, enhanced_prompt, caption, created_at`

// Store handles database operations for media records.
type Store struct {
	db *database.DB
}

// NewStore creates a new media store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a media record. Records are never updated afterwards.
func (s *Store) Create(ctx context.Context, m *Media) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		m.OwnerID,
		m.Backend,
		m.Bucket,
		m.Key,
		m.FileName,
		m.MimeType,
		m.Size,
		string(m.Provenance),
		m.Prompt,
		m.EnhancedPrompt,
		m.Caption,
		database.FormatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting media: %w", database.ClassifyError(err))
	}

	return nil
}

// Get retrieves a media record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM media WHERE id = ?`, id)

	var m Media
	var provenance, createdAt string
	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.Backend,
		&m.Bucket,
		&m.Key,
		&m.FileName,
		&m.MimeType,
		&m.Size,
		&provenance,
		&m.Prompt,
		&m.EnhancedPrompt,
		&m.Caption,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying media: %w", err)
	}

	m.Provenance = Provenance(provenance)
	if m.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}

	return &m, nil
}

// Delete removes a media record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting media: %w", err)
	}
	return nil
}
