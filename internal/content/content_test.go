package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"

	"github.com/watzon/clipcast/internal/config"
)

type fakeText struct {
	out   string
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeText) Complete(_ context.Context, system, user string) (string, error) {
	f.calls.Add(1)
	f.last.Store(system + "|" + user)
	return f.out, f.err
}

type fakeMedia struct {
	h   Handle
	err error
}

func (f fakeMedia) Generate(context.Context, string) (Handle, error) {
	return f.h, f.err
}

func TestGenerator_Enhance(t *testing.T) {
	text := &fakeText{out: "  a cinematic cat surfing  "}
	g := NewGenerator(text, NoMedia{}, Options{})

	out, err := g.Enhance(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "a cinematic cat surfing", out)
	require.Contains(t, text.last.Load().(string), "Enhance this video prompt for social media: cat surfing")
}

func TestGenerator_EnhanceFallsBackToPrompt(t *testing.T) {
	g := NewGenerator(&fakeText{err: errors.New("quota")}, NoMedia{}, Options{})

	out, err := g.Enhance(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "cat surfing", out)

	g = NewGenerator(&fakeText{out: "   "}, NoMedia{}, Options{})
	out, err = g.Enhance(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "cat surfing", out)
}

func TestGenerator_CaptionSanitized(t *testing.T) {
	g := NewGenerator(&fakeText{out: "<p>Surf's up! <b>#cats</b> & waves</p>"}, NoMedia{}, Options{})

	out, err := g.GenerateCaption(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "Surf's up! #cats & waves", out)
}

func TestGenerator_CaptionFallsBackToEmpty(t *testing.T) {
	g := NewGenerator(Echo{}, NoMedia{}, Options{})

	out, err := g.GenerateCaption(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestGenerator_GenerateMediaFailure(t *testing.T) {
	g := NewGenerator(Echo{}, fakeMedia{err: errors.New("render farm down")}, Options{})
	_, err := g.GenerateMedia(context.Background(), "cat")
	require.ErrorIs(t, err, ErrContentService)
	require.Contains(t, err.Error(), "render farm down")

	g = NewGenerator(Echo{}, fakeMedia{}, Options{})
	_, err = g.GenerateMedia(context.Background(), "cat")
	require.ErrorIs(t, err, ErrContentService)

	g = NewGenerator(Echo{}, NoMedia{}, Options{})
	_, err = g.GenerateMedia(context.Background(), "cat")
	require.ErrorIs(t, err, ErrContentService)
}

func TestGenerator_RateLimitHonoursContext(t *testing.T) {
	g := NewGenerator(&fakeText{out: "ok"}, fakeMedia{h: Handle{URL: "http://x/v.mp4"}}, Options{RatePerMinute: 1})

	_, err := g.GenerateMedia(context.Background(), "first")
	require.NoError(t, err)

	// The bucket is now empty and refills once a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.GenerateMedia(ctx, "second")
	require.ErrorIs(t, err, ErrContentService)
}

func TestGenerator_Timeout(t *testing.T) {
	slow := textFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	g := NewGenerator(slow, NoMedia{}, Options{Timeout: 20 * time.Millisecond})

	out, err := g.Enhance(context.Background(), "cat")
	require.NoError(t, err)
	require.Equal(t, "cat", out)
}

type textFunc func(ctx context.Context, system, user string) (string, error)

func (f textFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func TestEndpointMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["prompt"] == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Handle{URL: "https://cdn.example.com/" + strings.ReplaceAll(body["prompt"], " ", "-") + ".mp4"})
	}))
	defer srv.Close()

	m := NewEndpointMedia(srv.URL, srv.Client())

	h, err := m.Generate(context.Background(), "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/cat-surfing.mp4", h.URL)

	_, err = m.Generate(context.Background(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestOpenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "Catch the wave #surfcat"}
			}]
		}`))
	}))
	defer srv.Close()

	model := NewOpenAI("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	out, err := model.Complete(context.Background(), captionSystemPrompt, "cat surfing")
	require.NoError(t, err)
	require.Equal(t, "Catch the wave #surfcat", out)
}

func TestNew(t *testing.T) {
	g, err := New(context.Background(), config.ContentConfig{Provider: "none"})
	require.NoError(t, err)

	out, err := g.Enhance(context.Background(), "cat")
	require.NoError(t, err)
	require.Equal(t, "cat", out)

	_, err = g.GenerateMedia(context.Background(), "cat")
	require.ErrorIs(t, err, ErrContentService)

	_, err = New(context.Background(), config.ContentConfig{Provider: "markov"})
	require.Error(t, err)

	g, err = New(context.Background(), config.ContentConfig{Provider: "openai", APIKey: "k", MediaEndpoint: "http://localhost:1"})
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, g.text)
	require.IsType(t, &EndpointMedia{}, g.media)
}
