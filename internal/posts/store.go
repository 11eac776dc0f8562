package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/clipcast/internal/database"
)

const columns = `id, schedule_id, cycle_id, media_id, account_id, platform, caption, status,
	scheduled_for, posted_at, error, created_at, updated_at`

var sortable = map[string]bool{
	"created_at":    true,
	"scheduled_for": true,
	"posted_at":     true,
	"status":        true,
}

// Store handles database operations for posts.
type Store struct {
	db *database.DB
}

// NewStore creates a new post store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateBatch inserts every post as pending in a single transaction. Either all rows
// are written or none are.
func (s *Store) CreateBatch(ctx context.Context, batch []*Post) error {
	if len(batch) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO posts (`+columns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing post insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range batch {
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			p.Status = StatusPending
			p.PostedAt = nil
			p.Error = ""
			p.CreatedAt = now
			p.UpdatedAt = now
			if p.ScheduledFor.IsZero() {
				p.ScheduledFor = now
			}

			if _, err := stmt.ExecContext(ctx,
				p.ID,
				p.ScheduleID,
				p.CycleID,
				p.MediaID,
				p.AccountID,
				p.Platform,
				p.Caption,
				string(p.Status),
				database.FormatTime(p.ScheduledFor),
				sql.NullString{},
				p.Error,
				database.FormatTime(p.CreatedAt),
				database.FormatTime(p.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting post for account %s: %w", p.AccountID, database.ClassifyError(err))
			}
		}

		return nil
	})
}

// MarkPosted moves a pending post to posted.
func (s *Store) MarkPosted(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, StatusPosted, database.NullTime(&at), "")
}

// MarkFailed moves a pending post to failed with the error text.
func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, StatusFailed, sql.NullString{}, reason)
}

// finish performs the single allowed transition. The WHERE clause makes a second
// terminal write a no-op that is reported as ErrAlreadyTerminal.
func (s *Store) finish(ctx context.Context, id string, status Status, postedAt sql.NullString, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET status = ?, posted_at = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, string(status), postedAt, reason, database.Now(), id)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrAlreadyTerminal, id)
}

// Get retrieves a post by ID.
func (s *Store) Get(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM posts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying post: %w", err)
	}
	return p, nil
}

// List retrieves posts with filters. Results default to newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Post, error) {
	q := database.NewQuery("posts").Select(columns)

	if filter.ScheduleID != "" {
		q.Where("schedule_id", filter.ScheduleID)
	}
	if filter.CycleID != "" {
		q.Where("cycle_id", filter.CycleID)
	}
	if filter.AccountID != "" {
		q.Where("account_id", filter.AccountID)
	}
	if filter.Status != "" {
		q.Where("status", string(filter.Status))
	}

	field, order := database.ParseSortString(filter.Sort)
	if !sortable[field] {
		field, order = "created_at", database.SortDesc
	}
	q.Sort(field, order).OrderBy("id").Limit(filter.Limit).Offset(filter.Offset)

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var result []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}

	return result, nil
}

// CountPending returns the number of posts still awaiting an outcome.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	query, args := database.NewQuery("posts").Where("status", string(StatusPending)).BuildCount()

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending posts: %w", err)
	}
	return n, nil
}

// FailStale marks posts left pending since before cutoff as failed. A crash mid-cycle
// leaves such rows behind; they are never retried automatically.
func (s *Store) FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET status = 'failed', error = ?, updated_at = ?
		WHERE status = 'pending' AND created_at < ?
	`, reason, database.Now(), database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failing stale posts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*Post, error) {
	var p Post
	var status, scheduledFor, createdAt, updatedAt string
	var postedAt sql.NullString

	if err := row.Scan(
		&p.ID,
		&p.ScheduleID,
		&p.CycleID,
		&p.MediaID,
		&p.AccountID,
		&p.Platform,
		&p.Caption,
		&status,
		&scheduledFor,
		&postedAt,
		&p.Error,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	p.Status = Status(status)

	var err error
	if p.ScheduledFor, err = database.ParseTime(scheduledFor); err != nil {
		return nil, err
	}
	if p.PostedAt, err = database.ParseNullTime(postedAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}
