// Package posts records every publish attempt and its single terminal outcome.
package posts

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a post.
type Status string

const (
	// StatusPending indicates the post was recorded and publishing has not finished.
	StatusPending Status = "pending"
	// StatusPosted indicates the platform accepted the upload.
	StatusPosted Status = "posted"
	// StatusFailed indicates the attempt ended with an error.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPosted || s == StatusFailed
}

var (
	// ErrNotFound is returned when a post does not exist.
	ErrNotFound = errors.New("post not found")
	// ErrAlreadyTerminal is returned when a post already left the pending state.
	ErrAlreadyTerminal = errors.New("post already has a terminal status")
)

// Post is one (content, account) publish attempt.
type Post struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id"`
	CycleID      string     `json:"cycle_id"`
	MediaID      string     `json:"media_id"`
	AccountID    string     `json:"account_id"`
	Platform     string     `json:"platform"`
	Caption      string     `json:"caption"`
	Status       Status     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	PostedAt     *time.Time `json:"posted_at,omitempty"` // set on success only
	Error        string     `json:"error,omitempty"`     // set on failure only
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ListFilter narrows Store.List. Zero values match everything.
type ListFilter struct {
	ScheduleID string
	CycleID    string
	AccountID  string
	Status     Status
	Sort       string // e.g. "-created_at"
	Limit      int
	Offset     int
}
