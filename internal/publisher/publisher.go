// Package publisher runs one publish attempt for one account inside its own browser session.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/browser"
	"github.com/watzon/clipcast/internal/metrics"
	"github.com/watzon/clipcast/internal/sessions"
)

// Launcher opens a browser bound to a profile directory.
type Launcher interface {
	Open(ctx context.Context, profilePath string) (browser.Session, error)
}

// Profiles resolves account profile directories. The publisher never creates them.
type Profiles interface {
	PathFor(id string) string
	Exists(id string) (bool, error)
}

// Request is a single (media, caption, account) attempt.
type Request struct {
	Media   Media
	Caption string
	Account *accounts.Account
}

// Outcome is the definitive result of a Request. Err is nil on success.
type Outcome struct {
	AccountID  string
	Platform   string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Publisher dispatches requests to platform drivers.
type Publisher struct {
	registry *Registry
	profiles Profiles
	launcher Launcher
	timeout  time.Duration
	locks    *keyLock
}

// New creates a publisher. A zero timeout leaves attempts unbounded.
func New(registry *Registry, profiles Profiles, launcher Launcher, timeout time.Duration) *Publisher {
	return &Publisher{
		registry: registry,
		profiles: profiles,
		launcher: launcher,
		timeout:  timeout,
		locks:    newKeyLock(),
	}
}

// Publish runs req to completion. It never panics and always reports an outcome.
func (p *Publisher) Publish(ctx context.Context, req Request) Outcome {
	out := Outcome{
		AccountID: req.Account.ID,
		Platform:  string(req.Account.Platform),
		StartedAt: time.Now(),
	}

	out.Err = p.publish(ctx, req)
	out.FinishedAt = time.Now()

	metrics.RecordPublish(out.Platform, out.FinishedAt.Sub(out.StartedAt))

	evt := log.Info()
	if out.Err != nil {
		evt = log.Warn().Err(out.Err)
	}
	evt.Str("account_id", out.AccountID).
		Str("platform", out.Platform).
		Dur("duration", out.FinishedAt.Sub(out.StartedAt)).
		Msg("Publish attempt finished")

	return out
}

func (p *Publisher) publish(ctx context.Context, req Request) (err error) {
	acct := req.Account
	platform := string(acct.Platform)

	defer func() {
		if r := recover(); r != nil {
			err = &PublishFailedError{Platform: platform, Cause: fmt.Errorf("driver panic: %v", r)}
		}
	}()

	driver, ok := p.registry.Lookup(platform)
	if !ok {
		return &UnsupportedPlatformError{Platform: platform}
	}

	unlock, err := p.locks.Lock(ctx, acct.ID)
	if err != nil {
		return &PublishFailedError{Platform: platform, Cause: fmt.Errorf("waiting for account %s: %w", acct.ID, err)}
	}
	defer unlock()

	exists, err := p.profiles.Exists(acct.ID)
	if err != nil {
		return &PublishFailedError{Platform: platform, Cause: err}
	}
	if !exists {
		return &PublishFailedError{
			Platform: platform,
			Cause:    fmt.Errorf("%w: no profile for account %s", sessions.ErrSessionStore, acct.ID),
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	session, err := p.launcher.Open(ctx, p.profiles.PathFor(acct.ID))
	if err != nil {
		return &PublishFailedError{Platform: platform, Cause: fmt.Errorf("opening browser: %w", err)}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("account_id", acct.ID).Msg("Browser session close reported an error")
		}
	}()

	if err := driver.Publish(ctx, session, req.Media, req.Caption); err != nil {
		return &PublishFailedError{Platform: platform, Cause: err}
	}

	return nil
}
