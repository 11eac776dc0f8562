// Package drivers holds the built-in browser flows for each supported platform.
package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/browser"
	"github.com/watzon/clipcast/internal/publisher"
)

// Flow describes an upload form as a sequence of selectors.
// All selectors are CSS queries.
type Flow struct {
	Name      string
	UploadURL string

	// Open is clicked in order before the file input is available.
	Open []string
	// FileInput receives the video.
	FileInput string
	// BeforeCaption is clicked after the upload starts.
	BeforeCaption []string
	// Caption is the editable field the caption is typed into. Empty skips it.
	Caption string
	// AfterCaption is clicked once the caption is in place.
	AfterCaption []string
	// Submit publishes. It is clicked once enabled.
	Submit string
	// Confirm appears when the platform has accepted the post.
	Confirm string
	// Settle is waited out after navigation for late-rendering pages.
	Settle time.Duration
}

// Platform implements publisher.Driver.
func (f Flow) Platform() string { return f.Name }

// Publish implements publisher.Driver.
func (f Flow) Publish(ctx context.Context, s browser.Session, m publisher.Media, caption string) error {
	if m.Path == "" {
		return errors.New("media has no local path")
	}

	runCtx, cancel := context.WithCancel(s.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// Upload pages raise beforeunload prompts that would block navigation.
	chromedp.ListenTarget(runCtx, func(ev any) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(runCtx, page.HandleJavaScriptDialog(true)); err != nil {
					log.Debug().Err(err).Str("platform", f.Name).Msg("Failed to dismiss dialog")
				}
			}()
		}
	})

	if err := chromedp.Run(runCtx, f.Tasks(m, caption)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s flow: %w", f.Name, ctxErr)
		}
		return fmt.Errorf("%s flow: %w", f.Name, err)
	}
	return nil
}

// Tasks returns the chromedp actions for one upload.
func (f Flow) Tasks(m publisher.Media, caption string) chromedp.Tasks {
	tasks := chromedp.Tasks{chromedp.Navigate(f.UploadURL)}
	if f.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(f.Settle))
	}

	tasks = append(tasks, clicks(f.Open)...)
	tasks = append(tasks,
		chromedp.WaitReady(f.FileInput, chromedp.ByQuery),
		chromedp.SetUploadFiles(f.FileInput, []string{m.Path}, chromedp.ByQuery),
	)
	tasks = append(tasks, clicks(f.BeforeCaption)...)

	if f.Caption != "" && caption != "" {
		tasks = append(tasks,
			chromedp.WaitVisible(f.Caption, chromedp.ByQuery),
			chromedp.Click(f.Caption, chromedp.ByQuery),
			chromedp.SendKeys(f.Caption, caption, chromedp.ByQuery),
		)
	}

	tasks = append(tasks, clicks(f.AfterCaption)...)
	tasks = append(tasks,
		chromedp.WaitEnabled(f.Submit, chromedp.ByQuery),
		chromedp.Click(f.Submit, chromedp.ByQuery),
		chromedp.WaitVisible(f.Confirm, chromedp.ByQuery),
	)
	return tasks
}

func clicks(selectors []string) chromedp.Tasks {
	tasks := make(chromedp.Tasks, 0, len(selectors)*2)
	for _, sel := range selectors {
		tasks = append(tasks,
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
		)
	}
	return tasks
}
