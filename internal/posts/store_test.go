package posts

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/clipcast/internal/config"
	"github.com/watzon/clipcast/internal/database"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func batch(cycle string, accounts ...string) []*Post {
	out := make([]*Post, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, &Post{
			ScheduleID: "sched-1",
			CycleID:    cycle,
			MediaID:    "media-1",
			AccountID:  acc,
			Platform:   "tiktok",
			Caption:    "hello",
		})
	}
	return out
}

func TestStore_CreateBatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1", "a2", "a3")
	require.NoError(t, s.CreateBatch(ctx, b))

	for _, p := range b {
		require.NotEmpty(t, p.ID)
		require.Equal(t, StatusPending, p.Status)

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, StatusPending, got.Status)
		require.Nil(t, got.PostedAt)
		require.Empty(t, got.Error)
	}

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStore_CreateBatchIsAtomic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1", "a2")
	b[0].ID = "dup"
	b[1].ID = "dup"

	err := s.CreateBatch(ctx, b)
	require.Error(t, err)
	require.ErrorIs(t, err, database.ErrUniqueViolation)

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStore_MarkPosted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1")
	require.NoError(t, s.CreateBatch(ctx, b))

	at := time.Now().UTC()
	require.NoError(t, s.MarkPosted(ctx, b[0].ID, at))

	got, err := s.Get(ctx, b[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, got.Status)
	require.NotNil(t, got.PostedAt)
	require.WithinDuration(t, at, *got.PostedAt, time.Millisecond)
	require.Empty(t, got.Error)
}

func TestStore_MarkFailed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1")
	require.NoError(t, s.CreateBatch(ctx, b))

	require.NoError(t, s.MarkFailed(ctx, b[0].ID, "upload button not found"))

	got, err := s.Get(ctx, b[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Nil(t, got.PostedAt)
	require.Equal(t, "upload button not found", got.Error)
}

func TestStore_TerminalStatusIsWrittenOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1", "a2")
	require.NoError(t, s.CreateBatch(ctx, b))

	require.NoError(t, s.MarkPosted(ctx, b[0].ID, time.Now()))
	require.ErrorIs(t, s.MarkFailed(ctx, b[0].ID, "late"), ErrAlreadyTerminal)
	require.ErrorIs(t, s.MarkPosted(ctx, b[0].ID, time.Now()), ErrAlreadyTerminal)

	require.NoError(t, s.MarkFailed(ctx, b[1].ID, "boom"))
	require.ErrorIs(t, s.MarkPosted(ctx, b[1].ID, time.Now()), ErrAlreadyTerminal)

	first, err := s.Get(ctx, b[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, first.Status)
	require.Empty(t, first.Error)

	second, err := s.Get(ctx, b[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, second.Status)
	require.Equal(t, "boom", second.Error)

	require.ErrorIs(t, s.MarkPosted(ctx, "ghost", time.Now()), ErrNotFound)
}

func TestStore_ConcurrentTerminalWrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1")
	require.NoError(t, s.CreateBatch(ctx, b))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	var losses []error
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = s.MarkPosted(ctx, b[0].ID, time.Now())
			} else {
				err = s.MarkFailed(ctx, b[0].ID, "lost")
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				losses = append(losses, err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	for _, err := range losses {
		require.ErrorIs(t, err, ErrAlreadyTerminal)
	}
}

func TestStore_List(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := batch("cycle-1", "a1", "a2")
	second := batch("cycle-2", "a1")
	second[0].ScheduleID = "sched-2"
	require.NoError(t, s.CreateBatch(ctx, first))
	require.NoError(t, s.CreateBatch(ctx, second))
	require.NoError(t, s.MarkFailed(ctx, first[1].ID, "x"))

	bySchedule, err := s.List(ctx, ListFilter{ScheduleID: "sched-1"})
	require.NoError(t, err)
	require.Len(t, bySchedule, 2)

	failed, err := s.List(ctx, ListFilter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "a2", failed[0].AccountID)

	byCycle, err := s.List(ctx, ListFilter{CycleID: "cycle-2", AccountID: "a1"})
	require.NoError(t, err)
	require.Len(t, byCycle, 1)

	limited, err := s.List(ctx, ListFilter{Limit: 1, Sort: "bogus; DROP TABLE posts"})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestStore_FailStale(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b := batch("cycle-1", "a1", "a2")
	require.NoError(t, s.CreateBatch(ctx, b))
	require.NoError(t, s.MarkPosted(ctx, b[0].ID, time.Now()))

	n, err := s.FailStale(ctx, time.Now().Add(time.Minute), "interrupted by restart")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := s.Get(ctx, b[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "interrupted by restart", got.Error)

	posted, err := s.Get(ctx, b[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
}
