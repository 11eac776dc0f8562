package schedules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/clipcast/internal/database"
)

// ErrNotFound is returned when a schedule does not exist.
var ErrNotFound = errors.New("schedule not found")

const columns = `id, owner_id, name, frequency, time_of_day, days, expression, timezone,
	ai_prompt, media_id, account_ids, active, created_at, updated_at`

// Store handles database operations for schedules.
type Store struct {
	db *database.DB
}

// NewStore creates a new schedule store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new schedule, assigning an id and timestamps when missing.
func (s *Store) Create(ctx context.Context, sched *Schedule) error {
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now

	days, accountIDs, err := encodeLists(sched)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sched.ID,
		sched.OwnerID,
		sched.Name,
		string(sched.Recurrence.Frequency),
		sched.Recurrence.Time,
		days,
		sched.Recurrence.Expression,
		sched.Timezone,
		sched.AIPrompt,
		sched.MediaID,
		accountIDs,
		sched.Active,
		database.FormatTime(sched.CreatedAt),
		database.FormatTime(sched.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting schedule: %w", database.ClassifyError(err))
	}

	return nil
}

// Update replaces every mutable field of an existing schedule.
func (s *Store) Update(ctx context.Context, sched *Schedule) error {
	sched.UpdatedAt = time.Now().UTC()

	days, accountIDs, err := encodeLists(sched)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		SET name = ?, frequency = ?, time_of_day = ?, days = ?, expression = ?, timezone = ?,
		    ai_prompt = ?, media_id = ?, account_ids = ?, active = ?, updated_at = ?
		WHERE id = ?
	`,
		sched.Name,
		string(sched.Recurrence.Frequency),
		sched.Recurrence.Time,
		days,
		sched.Recurrence.Expression,
		sched.Timezone,
		sched.AIPrompt,
		sched.MediaID,
		accountIDs,
		sched.Active,
		database.FormatTime(sched.UpdatedAt),
		sched.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", database.ClassifyError(err))
	}

	return requireOneRow(result, sched.ID)
}

// SetActive toggles the active flag only.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = ?, updated_at = ? WHERE id = ?`,
		active, database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating schedule active flag: %w", err)
	}
	return requireOneRow(result, id)
}

// Delete removes a schedule. Deleting a missing schedule returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return requireOneRow(result, id)
}

// Get retrieves a schedule by ID.
func (s *Store) Get(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying schedule: %w", err)
	}

	return sched, nil
}

// ListActive returns every active schedule, used at startup to register triggers.
func (s *Store) ListActive(ctx context.Context) ([]*Schedule, error) {
	return s.List(ctx, ListFilter{ActiveOnly: true})
}

// List returns schedules matching filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Schedule, error) {
	q := database.NewQuery("schedules").Select(columns)
	if filter.OwnerID != "" {
		q.Where("owner_id", filter.OwnerID)
	}
	if filter.ActiveOnly {
		q.Where("active", true)
	}
	q.OrderByDesc("created_at").Limit(filter.Limit).Offset(filter.Offset)

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var result []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		result = append(result, sched)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var sched Schedule
	var frequency, days, accountIDs, createdAt, updatedAt string

	if err := row.Scan(
		&sched.ID,
		&sched.OwnerID,
		&sched.Name,
		&frequency,
		&sched.Recurrence.Time,
		&days,
		&sched.Recurrence.Expression,
		&sched.Timezone,
		&sched.AIPrompt,
		&sched.MediaID,
		&accountIDs,
		&sched.Active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	sched.Recurrence.Frequency = Frequency(frequency)

	if err := json.Unmarshal([]byte(days), &sched.Recurrence.Days); err != nil {
		return nil, fmt.Errorf("decoding days: %w", err)
	}
	if err := json.Unmarshal([]byte(accountIDs), &sched.AccountIDs); err != nil {
		return nil, fmt.Errorf("decoding account ids: %w", err)
	}

	var err error
	if sched.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if sched.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}

	return &sched, nil
}

func encodeLists(sched *Schedule) (days, accountIDs string, err error) {
	d := sched.Recurrence.Days
	if d == nil {
		d = []time.Weekday{}
	}
	a := sched.AccountIDs
	if a == nil {
		a = []string{}
	}

	dj, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("encoding days: %w", err)
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("encoding account ids: %w", err)
	}
	return string(dj), string(aj), nil
}

func requireOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
