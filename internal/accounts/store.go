package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/clipcast/internal/database"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

const columns = `id, owner_id, platform, display_name, profile_path, active, created_at, updated_at`

// Store handles database operations for accounts.
type Store struct {
	db *database.DB
}

// NewStore creates a new account store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// NewID returns an id for an account that is about to be created.
// The id doubles as the browser profile directory name.
func NewID(ownerID string, platform Platform) string {
	return fmt.Sprintf("%s-%s-%s", ownerID, platform, uuid.New().String()[:8])
}

// Create inserts a new account.
func (s *Store) Create(ctx context.Context, acc *Account) error {
	if acc.ID == "" {
		acc.ID = NewID(acc.OwnerID, acc.Platform)
	}
	now := time.Now().UTC()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		acc.ID,
		acc.OwnerID,
		string(acc.Platform),
		acc.DisplayName,
		acc.ProfilePath,
		acc.Active,
		database.FormatTime(acc.CreatedAt),
		database.FormatTime(acc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", database.ClassifyError(err))
	}

	return nil
}

// Get retrieves an account by ID.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return acc, nil
}

// List returns the accounts of an owner, newest first. An empty owner lists everything.
func (s *Store) List(ctx context.Context, ownerID string) ([]*Account, error) {
	q := database.NewQuery("accounts").Select(columns).OrderByDesc("created_at")
	if ownerID != "" {
		q.Where("owner_id", ownerID)
	}
	return s.query(ctx, q)
}

// ListActiveByIDs returns the active accounts of owner among ids, in the order of ids.
// Unknown, inactive or foreign ids are silently dropped.
func (s *Store) ListActiveByIDs(ctx context.Context, ownerID string, ids []string) ([]*Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in := make([]any, len(ids))
	for i, id := range ids {
		in[i] = id
	}

	q := database.NewQuery("accounts").
		Select(columns).
		Where("owner_id", ownerID).
		Where("active", true).
		Filter("id", database.OpIn, in)

	found, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Account, len(found))
	for _, acc := range found {
		byID[acc.ID] = acc
	}

	ordered := make([]*Account, 0, len(found))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if acc, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, acc)
			seen[id] = true
		}
	}

	return ordered, nil
}

// SetActive toggles the active flag. The profile directory is left alone.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET active = ?, updated_at = ? WHERE id = ?`,
		active, database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes an account row.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q *database.QueryBuilder) ([]*Account, error) {
	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var result []*Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		result = append(result, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var acc Account
	var platform, createdAt, updatedAt string

	if err := row.Scan(
		&acc.ID,
		&acc.OwnerID,
		&platform,
		&acc.DisplayName,
		&acc.ProfilePath,
		&acc.Active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	acc.Platform = Platform(platform)

	var err error
	if acc.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if acc.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &acc, nil
}
