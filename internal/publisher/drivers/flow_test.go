package drivers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/publisher"
)

func TestBuiltinCoversEveryPlatform(t *testing.T) {
	reg := publisher.NewRegistry(Builtin()...)

	for _, p := range accounts.Platforms {
		d, ok := reg.Lookup(string(p))
		require.True(t, ok, "no driver for %s", p)

		flow := d.(Flow)
		require.True(t, strings.HasPrefix(flow.UploadURL, "https://"), p)
		require.NotEmpty(t, flow.FileInput, p)
		require.NotEmpty(t, flow.Submit, p)
		require.NotEmpty(t, flow.Confirm, p)
	}
}

func TestFlowTasks(t *testing.T) {
	m := publisher.Media{ID: "m1", Path: "/tmp/clip.mp4"}

	// navigate, settle, wait+upload, wait+click+type caption, wait+click+confirm
	require.Len(t, TikTok.Tasks(m, "hello"), 1+1+2+3+3)

	// Caption steps are dropped when there is nothing to type.
	require.Len(t, TikTok.Tasks(m, ""), 1+1+2+3)

	// two open clicks and five after-caption clicks, two actions each
	require.Len(t, YouTube.Tasks(m, "title"), 1+4+2+3+10+3)
}

func TestFlowRejectsMissingPath(t *testing.T) {
	err := TikTok.Publish(context.Background(), nil, publisher.Media{ID: "m1"}, "hi")
	require.Error(t, err)
}

func TestLoginURL(t *testing.T) {
	url, ok := LoginURL("youtube")
	require.True(t, ok)
	require.Equal(t, "https://studio.youtube.com", url)

	_, ok = LoginURL("myspace")
	require.False(t, ok)
}
