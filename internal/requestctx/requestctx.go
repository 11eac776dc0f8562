// Package requestctx carries per-request values through a context: the request
// id, when the request arrived, and a logger already tagged with the id.
package requestctx

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey struct{}

type info struct {
	id    string
	start time.Time
}

// New returns ctx annotated with the request id and start time. The returned
// context also holds a logger with a request_id field, see Logger.
func New(ctx context.Context, id string, start time.Time) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, info{id: id, start: start})
	return log.Logger.With().Str("request_id", id).Logger().WithContext(ctx)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(info); ok {
		return v.id
	}
	return ""
}

func RequestTime(ctx context.Context) time.Time {
	if v, ok := ctx.Value(contextKey{}).(info); ok {
		return v.start
	}
	return time.Time{}
}

// Logger returns the request logger, or the global logger outside a request.
func Logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
