// Package browser opens Chrome instances bound to a persistent profile directory.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/config"
)

// ErrProfileMissing is returned when the profile directory does not exist.
var ErrProfileMissing = errors.New("browser profile does not exist")

// Session is an open browser. Context is the chromedp context to run actions in.
type Session interface {
	Context() context.Context
	Close() error
}

// Launcher starts a Chrome process per session.
type Launcher struct {
	cfg config.BrowserConfig
}

// NewLauncher creates a launcher.
func NewLauncher(cfg config.BrowserConfig) *Launcher {
	return &Launcher{cfg: cfg}
}

// Open starts Chrome against profilePath and waits until it accepts commands.
// The session stops when ctx is cancelled or Close is called.
func (l *Launcher) Open(ctx context.Context, profilePath string) (Session, error) {
	if info, err := os.Stat(profilePath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrProfileMissing, profilePath)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(profilePath)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug().Msgf("chromedp: "+format, args...)
		}),
	)

	s := &chromeSession{ctx: browserCtx, cancels: []context.CancelFunc{browserCancel, allocCancel}}

	// An empty Run launches the process so start-up errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	log.Debug().Str("profile", profilePath).Bool("headless", l.cfg.Headless).Msg("Browser session opened")
	return s, nil
}

func (l *Launcher) allocatorOptions(profilePath string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(profilePath),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(1920, 1080),
	}

	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if l.cfg.NoSandbox {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}

	return opts
}

type chromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
	once    sync.Once
	err     error
}

func (s *chromeSession) Context() context.Context {
	return s.ctx
}

// Close asks Chrome to exit and releases both contexts. It is safe to call twice.
func (s *chromeSession) Close() error {
	s.once.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.err = fmt.Errorf("closing browser: %w", err)
		}
		for _, cancel := range s.cancels {
			cancel()
		}
	})
	return s.err
}
