package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/clipcast/internal/database"
)

// StateStore persists per-schedule fire bookkeeping across restarts.
type StateStore struct {
	db *database.DB
}

func NewStateStore(db *database.DB) *StateStore {
	return &StateStore{db: db}
}

type ScheduleState struct {
	ScheduleID string     `json:"schedule_id"`
	LastFireAt *time.Time `json:"last_fire_at,omitempty"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty"`
	FireCount  int        `json:"fire_count"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

const stateColumns = `schedule_id, last_fire_at, next_fire_at, fire_count, last_status, last_error, updated_at`

func (s *StateStore) Save(ctx context.Context, state *ScheduleState) error {
	state.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			last_fire_at = excluded.last_fire_at,
			next_fire_at = excluded.next_fire_at,
			fire_count = excluded.fire_count,
			last_status = excluded.last_status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		state.ScheduleID,
		database.NullTime(state.LastFireAt),
		database.NullTime(state.NextFireAt),
		state.FireCount,
		state.LastStatus,
		state.LastError,
		database.FormatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving scheduler state: %w", err)
	}

	return nil
}

// SetNextFire records when a schedule will next fire, creating the row if needed.
func (s *StateStore) SetNextFire(ctx context.Context, scheduleID string, next time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (schedule_id, next_fire_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			next_fire_at = excluded.next_fire_at,
			updated_at = excluded.updated_at
	`, scheduleID, database.NullTime(&next), database.FormatTime(now))
	if err != nil {
		return fmt.Errorf("saving next fire: %w", err)
	}
	return nil
}

// RecordFire stores the outcome of a fire and bumps the fire count.
func (s *StateStore) RecordFire(ctx context.Context, scheduleID string, firedAt time.Time, next *time.Time, status, errText string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (`+stateColumns+`)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET
			last_fire_at = excluded.last_fire_at,
			next_fire_at = COALESCE(excluded.next_fire_at, scheduler_state.next_fire_at),
			fire_count = scheduler_state.fire_count + 1,
			last_status = excluded.last_status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		scheduleID,
		database.NullTime(&firedAt),
		database.NullTime(next),
		status,
		errText,
		database.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("recording fire: %w", err)
	}
	return nil
}

// Get returns the state for scheduleID, or nil when none was stored.
func (s *StateStore) Get(ctx context.Context, scheduleID string) (*ScheduleState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM scheduler_state WHERE schedule_id = ?`, scheduleID)

	state, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting scheduler state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Delete(ctx context.Context, scheduleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_state WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return fmt.Errorf("deleting scheduler state: %w", err)
	}

	return nil
}

func (s *StateStore) List(ctx context.Context) ([]*ScheduleState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stateColumns+` FROM scheduler_state ORDER BY schedule_id`)
	if err != nil {
		return nil, fmt.Errorf("querying scheduler states: %w", err)
	}
	defer rows.Close()

	var states []*ScheduleState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scheduler state: %w", err)
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scheduler states: %w", err)
	}

	return states, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*ScheduleState, error) {
	var state ScheduleState
	var lastFire, nextFire sql.NullString
	var updatedAt string

	if err := row.Scan(
		&state.ScheduleID,
		&lastFire,
		&nextFire,
		&state.FireCount,
		&state.LastStatus,
		&state.LastError,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if state.LastFireAt, err = database.ParseNullTime(lastFire); err != nil {
		return nil, fmt.Errorf("parsing last_fire_at: %w", err)
	}
	if state.NextFireAt, err = database.ParseNullTime(nextFire); err != nil {
		return nil, fmt.Errorf("parsing next_fire_at: %w", err)
	}
	if state.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &state, nil
}
