// Package pipeline runs one firing of a schedule: it resolves accounts and content,
// records a pending post per account and publishes to all of them in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/content"
	"github.com/watzon/clipcast/internal/media"
	"github.com/watzon/clipcast/internal/metrics"
	"github.com/watzon/clipcast/internal/posts"
	"github.com/watzon/clipcast/internal/publisher"
	"github.com/watzon/clipcast/internal/schedules"
)

var (
	// ErrContentService is returned when generated media could not be produced.
	ErrContentService = content.ErrContentService

	// ErrNoContent is returned when a schedule has neither a prompt nor media.
	ErrNoContent = errors.New("schedule has no content source")
)

// AccountSource resolves target accounts.
type AccountSource interface {
	ListActiveByIDs(ctx context.Context, ownerID string, ids []string) ([]*accounts.Account, error)
}

// PostStore persists post lifecycle transitions.
type PostStore interface {
	CreateBatch(ctx context.Context, batch []*posts.Post) error
	MarkPosted(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// MediaLibrary loads and stores media.
type MediaLibrary interface {
	Get(ctx context.Context, id string) (*media.Media, error)
	ImportURL(ctx context.Context, url string, origin media.Origin) (*media.Media, error)
	LocalPath(ctx context.Context, m *media.Media) (string, func(), error)
}

// Publisher performs one publish attempt.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) publisher.Outcome
}

// CycleReport summarises one run.
type CycleReport struct {
	CycleID    string `json:"cycle_id"`
	ScheduleID string `json:"schedule_id"`
	Posted     int    `json:"posted"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"` // targets that were inactive or missing
}

// Options tune a Pipeline.
type Options struct {
	MaxParallel  int
	CycleTimeout time.Duration
}

// Pipeline executes cycles.
type Pipeline struct {
	accounts  AccountSource
	posts     PostStore
	media     MediaLibrary
	content   content.Service
	publisher Publisher
	opts      Options
}

// New creates a pipeline.
func New(acc AccountSource, ps PostStore, lib MediaLibrary, cs content.Service, pub Publisher, opts Options) *Pipeline {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &Pipeline{
		accounts:  acc,
		posts:     ps,
		media:     lib,
		content:   cs,
		publisher: pub,
		opts:      opts,
	}
}

type cycleContent struct {
	media   *media.Media
	caption string
}

// RunCycle executes one firing of s. Per-account failures are recorded on the
// posts and never returned; an error means no posts were created.
func (p *Pipeline) RunCycle(ctx context.Context, s *schedules.Schedule) (*CycleReport, error) {
	report := &CycleReport{CycleID: uuid.New().String(), ScheduleID: s.ID}
	logger := log.With().Str("schedule_id", s.ID).Str("cycle_id", report.CycleID).Logger()

	if p.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CycleTimeout)
		defer cancel()
	}

	targets, err := p.accounts.ListActiveByIDs(ctx, s.OwnerID, s.AccountIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving accounts: %w", err)
	}
	report.Skipped = uniqueCount(s.AccountIDs) - len(targets)

	if len(targets) == 0 {
		logger.Warn().Int("targets", len(s.AccountIDs)).Msg("No active accounts to publish to")
		return report, nil
	}

	item, err := p.resolveContent(ctx, s)
	if err != nil {
		return nil, err
	}

	scheduledFor := time.Now().UTC()
	batch := make([]*posts.Post, len(targets))
	for i, acct := range targets {
		batch[i] = &posts.Post{
			ScheduleID:   s.ID,
			CycleID:      report.CycleID,
			MediaID:      item.media.ID,
			AccountID:    acct.ID,
			Platform:     string(acct.Platform),
			Caption:      item.caption,
			ScheduledFor: scheduledFor,
		}
	}
	if err := p.posts.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("recording pending posts: %w", err)
	}

	logger.Info().
		Int("accounts", len(targets)).
		Str("media_id", item.media.ID).
		Msg("Cycle started")

	path, cleanup, err := p.media.LocalPath(ctx, item.media)
	if err != nil {
		reason := fmt.Sprintf("preparing media: %v", err)
		for i, post := range batch {
			p.finish(ctx, logger, post, targets[i], reason)
		}
		report.Failed = len(batch)
		logger.Error().Err(err).Msg("Media unavailable, cycle failed")
		return report, nil
	}
	defer cleanup()

	results := p.fanOut(ctx, logger, batch, targets, publisher.Media{ID: item.media.ID, Path: path})
	for _, ok := range results {
		if ok {
			report.Posted++
		} else {
			report.Failed++
		}
	}

	logger.Info().
		Int("posted", report.Posted).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("Cycle finished")

	return report, nil
}

func (p *Pipeline) resolveContent(ctx context.Context, s *schedules.Schedule) (*cycleContent, error) {
	switch {
	case s.UsesAI():
		enhanced, err := p.content.Enhance(ctx, s.AIPrompt)
		if err != nil || enhanced == "" {
			enhanced = s.AIPrompt
		}

		handle, err := p.content.GenerateMedia(ctx, enhanced)
		if err != nil {
			if errors.Is(err, ErrContentService) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrContentService, err)
		}

		caption, err := p.content.GenerateCaption(ctx, s.AIPrompt)
		if err != nil {
			caption = ""
		}

		m, err := p.media.ImportURL(ctx, handle.URL, media.Origin{
			OwnerID:        s.OwnerID,
			Provenance:     media.ProvenanceAI,
			Prompt:         s.AIPrompt,
			EnhancedPrompt: enhanced,
			Caption:        caption,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: importing generated media: %w", ErrContentService, err)
		}
		return &cycleContent{media: m, caption: caption}, nil

	case s.MediaID != "":
		m, err := p.media.Get(ctx, s.MediaID)
		if err != nil {
			return nil, fmt.Errorf("loading media %s: %w", s.MediaID, err)
		}
		return &cycleContent{media: m, caption: m.Caption}, nil

	default:
		return nil, ErrNoContent
	}
}

// fanOut publishes to every target, at most MaxParallel at a time, and reports
// success per index.
func (p *Pipeline) fanOut(ctx context.Context, logger zerolog.Logger, batch []*posts.Post, targets []*accounts.Account, m publisher.Media) []bool {
	results := make([]bool, len(batch))
	sem := make(chan struct{}, p.opts.MaxParallel)

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = p.attempt(ctx, logger, batch[i], targets[i], m)
		}(i)
	}
	wg.Wait()

	return results
}

func (p *Pipeline) attempt(ctx context.Context, logger zerolog.Logger, post *posts.Post, acct *accounts.Account, m publisher.Media) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			p.finish(ctx, logger, post, acct, fmt.Sprintf("publish panic: %v", r))
		}
	}()

	out := p.publisher.Publish(ctx, publisher.Request{
		Media:   m,
		Caption: post.Caption,
		Account: acct,
	})
	if out.Err != nil {
		p.finish(ctx, logger, post, acct, out.Err.Error())
		return false
	}

	// The terminal write must land even if the cycle deadline passed.
	wctx := context.WithoutCancel(ctx)
	postedAt := out.FinishedAt
	if postedAt.IsZero() {
		postedAt = time.Now()
	}
	if err := p.posts.MarkPosted(wctx, post.ID, postedAt); err != nil {
		logger.Error().Err(err).Str("post_id", post.ID).Str("account_id", acct.ID).Msg("Failed to record posted status")
	}
	metrics.RecordPost(string(acct.Platform), string(posts.StatusPosted))
	return true
}

func (p *Pipeline) finish(ctx context.Context, logger zerolog.Logger, post *posts.Post, acct *accounts.Account, reason string) {
	if err := p.posts.MarkFailed(context.WithoutCancel(ctx), post.ID, reason); err != nil {
		logger.Error().Err(err).Str("post_id", post.ID).Str("account_id", acct.ID).Msg("Failed to record failed status")
	}
	metrics.RecordPost(string(acct.Platform), string(posts.StatusFailed))
	logger.Warn().
		Str("post_id", post.ID).
		Str("account_id", acct.ID).
		Str("platform", string(acct.Platform)).
		Str("error", reason).
		Msg("Post failed")
}

func uniqueCount(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
