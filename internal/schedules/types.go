// Package schedules holds the recurring publish rules users define and their storage.
package schedules

import (
	"slices"
	"time"
)

// Frequency is how often a schedule recurs.
type Frequency string

const (
	// FrequencyDaily fires once a day at Recurrence.Time.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly fires at Recurrence.Time on each of Recurrence.Days.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyCustom fires according to the raw cron Recurrence.Expression.
	FrequencyCustom Frequency = "custom"
)

// Recurrence describes when a schedule fires.
type Recurrence struct {
	Frequency  Frequency      `json:"frequency"`
	Time       string         `json:"time,omitempty"` // "HH:MM", 24h
	Days       []time.Weekday `json:"days,omitempty"` // 0 = Sunday
	Expression string         `json:"expression,omitempty"`
}

// Schedule is a user-owned rule that publishes content to a set of accounts.
type Schedule struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	Recurrence Recurrence `json:"recurrence"`
	AIPrompt   string     `json:"ai_prompt,omitempty"`
	MediaID    string     `json:"media_id,omitempty"`
	AccountIDs []string   `json:"account_ids"`
	Timezone   string     `json:"timezone,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so a registered trigger is unaffected by later edits.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	c.Recurrence.Days = slices.Clone(s.Recurrence.Days)
	c.AccountIDs = slices.Clone(s.AccountIDs)
	return &c
}

// UsesAI reports whether each cycle generates fresh content from a prompt.
func (s *Schedule) UsesAI() bool {
	return s.AIPrompt != ""
}

// TimingChanged reports whether moving from old to s alters when triggers fire.
func (s *Schedule) TimingChanged(old *Schedule) bool {
	if old == nil {
		return true
	}
	return s.Active != old.Active ||
		s.Timezone != old.Timezone ||
		s.Recurrence.Frequency != old.Recurrence.Frequency ||
		s.Recurrence.Time != old.Recurrence.Time ||
		s.Recurrence.Expression != old.Recurrence.Expression ||
		!slices.Equal(s.Recurrence.Days, old.Recurrence.Days)
}

// ListFilter narrows Store.List.
type ListFilter struct {
	OwnerID    string
	ActiveOnly bool
	Limit      int
	Offset     int
}
