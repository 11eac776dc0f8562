package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/storage"
)

// Origin carries the metadata recorded alongside a new media object.
type Origin struct {
	OwnerID        string
	Provenance     Provenance
	Prompt         string
	EnhancedPrompt string
	Caption        string
}

// Library stores media bytes in a backend and their records in a Store.
type Library struct {
	store   *Store
	backend storage.Backend
	client  *http.Client
	now     func() time.Time
}

// NewLibrary creates a library. A nil client uses http.DefaultClient.
func NewLibrary(store *Store, backend storage.Backend, client *http.Client) *Library {
	if client == nil {
		client = http.DefaultClient
	}
	return &Library{store: store, backend: backend, client: client, now: time.Now}
}

// Get retrieves a media record.
func (l *Library) Get(ctx context.Context, id string) (*Media, error) {
	return l.store.Get(ctx, id)
}

// ImportURL downloads a generated video and records it.
func (l *Library) ImportURL(ctx context.Context, url string, origin Origin) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading media: unexpected status %s", resp.Status)
	}

	if origin.Provenance == "" {
		origin.Provenance = ProvenanceAI
	}
	key := fmt.Sprintf("ai-%d.mp4", l.now().UnixNano())

	return l.put(ctx, key, key, resp.Body, resp.ContentLength, origin)
}

// Upload stores a manually supplied file.
func (l *Library) Upload(ctx context.Context, fileName string, r io.Reader, size int64, origin Origin) (*Media, error) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.mp4"
	}
	if origin.Provenance == "" {
		origin.Provenance = ProvenanceManual
	}
	key := fmt.Sprintf("%d-%s", l.now().UnixNano(), base)

	return l.put(ctx, key, base, r, size, origin)
}

func (l *Library) put(ctx context.Context, key, fileName string, r io.Reader, size int64, origin Origin) (*Media, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading media header: %w", err)
	}
	mimeType := http.DetectContentType(head)

	counter := &countingReader{r: br}
	if err := l.backend.Put(ctx, Bucket, key, counter, size); err != nil {
		return nil, fmt.Errorf("storing media: %w", err)
	}

	m := &Media{
		OwnerID:        origin.OwnerID,
		Backend:        l.backend.Name(),
		Bucket:         Bucket,
		Key:            key,
		FileName:       fileName,
		MimeType:       mimeType,
		Size:           counter.n,
		Provenance:     origin.Provenance,
		Prompt:         origin.Prompt,
		EnhancedPrompt: origin.EnhancedPrompt,
		Caption:        origin.Caption,
	}

	if err := l.store.Create(ctx, m); err != nil {
		if delErr := l.backend.Delete(context.WithoutCancel(ctx), Bucket, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("Failed to remove orphaned media object")
		}
		return nil, err
	}

	log.Info().
		Str("media_id", m.ID).
		Str("backend", m.Backend).
		Str("key", key).
		Int64("size", m.Size).
		Str("provenance", string(m.Provenance)).
		Msg("Stored media")

	return m, nil
}

// LocalPath returns a file on local disk holding m, for handing to a browser file input.
// The returned cleanup must always be called; it removes any temporary copy.
func (l *Library) LocalPath(ctx context.Context, m *Media) (string, func(), error) {
	noop := func() {}

	if loc, ok := l.backend.(storage.Localizer); ok {
		path, err := loc.LocalPath(m.Bucket, m.Key)
		if err != nil {
			return "", noop, fmt.Errorf("resolving media path: %w", err)
		}
		return path, noop, nil
	}

	rc, err := l.backend.Get(ctx, m.Bucket, m.Key)
	if err != nil {
		return "", noop, fmt.Errorf("fetching media: %w", err)
	}
	defer rc.Close()

	ext := filepath.Ext(m.FileName)
	if ext == "" {
		ext = ".mp4"
	}
	tmp, err := os.CreateTemp("", "clipcast-*"+ext)
	if err != nil {
		return "", noop, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("copying media to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("closing temp file: %w", err)
	}

	return tmp.Name(), cleanup, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
