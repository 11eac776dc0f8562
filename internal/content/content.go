// Package content turns a prompt into the pieces of a post: an enhanced prompt,
// a generated video and a caption.
package content

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrContentService is returned when media generation fails.
var ErrContentService = errors.New("content service failed")

const (
	enhanceSystemPrompt = "You are a video prompt expert. Enhance the user prompt to create engaging social media videos. Keep it concise but descriptive."
	captionSystemPrompt = "You are a social media caption expert. Create engaging captions with hashtags for videos."
)

// Handle points at generated media that still has to be downloaded.
type Handle struct {
	URL string `json:"url"`
}

// Service is what the pipeline needs from a content provider.
// Enhance and GenerateCaption never fail; they degrade to the prompt and "".
type Service interface {
	Enhance(ctx context.Context, prompt string) (string, error)
	GenerateMedia(ctx context.Context, prompt string) (Handle, error)
	GenerateCaption(ctx context.Context, prompt string) (string, error)
}

// TextModel completes a single system + user exchange.
type TextModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// MediaSource produces a video for a prompt.
type MediaSource interface {
	Generate(ctx context.Context, prompt string) (Handle, error)
}

// Generator implements Service on top of a text model and a media source.
type Generator struct {
	text    TextModel
	media   MediaSource
	limiter *rate.Limiter
	timeout time.Duration
	policy  *bluemonday.Policy
}

// Options tune a Generator.
type Options struct {
	// Timeout bounds each provider call. Zero disables it.
	Timeout time.Duration
	// RatePerMinute caps provider calls. Zero or less means unlimited.
	RatePerMinute int
}

// NewGenerator creates a generator.
func NewGenerator(text TextModel, media MediaSource, opts Options) *Generator {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), opts.RatePerMinute)
	}

	return &Generator{
		text:    text,
		media:   media,
		limiter: limiter,
		timeout: opts.Timeout,
		policy:  bluemonday.StrictPolicy(),
	}
}

// Enhance rewrites prompt for video generation, returning prompt unchanged on failure.
func (g *Generator) Enhance(ctx context.Context, prompt string) (string, error) {
	out, err := g.complete(ctx, enhanceSystemPrompt, "Enhance this video prompt for social media: "+prompt)
	if err != nil || out == "" {
		log.Warn().Err(err).Msg("Prompt enhancement failed, using original prompt")
		return prompt, nil
	}
	return out, nil
}

// GenerateCaption writes a caption for a video about prompt, or "" on failure.
func (g *Generator) GenerateCaption(ctx context.Context, prompt string) (string, error) {
	out, err := g.complete(ctx, captionSystemPrompt, "Create a catchy social media caption for a video about: "+prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Caption generation failed, posting without caption")
		return "", nil
	}
	return g.sanitize(out), nil
}

// GenerateMedia asks the media source for a video.
func (g *Generator) GenerateMedia(ctx context.Context, prompt string) (Handle, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return Handle{}, fmt.Errorf("%w: waiting for rate limit: %v", ErrContentService, err)
	}

	h, err := g.media.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrContentService) {
			return Handle{}, err
		}
		return Handle{}, fmt.Errorf("%w: %v", ErrContentService, err)
	}
	if h.URL == "" {
		return Handle{}, fmt.Errorf("%w: provider returned no media url", ErrContentService)
	}
	return h, nil
}

func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}

	out, err := g.text.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Generator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

// sanitize strips markup a model may wrap around a caption.
func (g *Generator) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.policy.Sanitize(s)))
}
