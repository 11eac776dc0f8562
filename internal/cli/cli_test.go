package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/config"
	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/schedules"
)

func TestUpcomingFires(t *testing.T) {
	after := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC) // Monday
	list := []*schedules.Schedule{
		{ID: "s1", Name: "morning-tiktok", Recurrence: schedules.Recurrence{Frequency: schedules.FrequencyDaily, Time: "09:00"}},
		{ID: "s2", Name: "morning-youtube", Recurrence: schedules.Recurrence{Frequency: schedules.FrequencyDaily, Time: "07:30"}},
		{ID: "s3", Name: "evening-all", Recurrence: schedules.Recurrence{Frequency: schedules.FrequencyDaily, Time: "20:00"}},
		{ID: "s4", Name: "morning-broken", Recurrence: schedules.Recurrence{Frequency: schedules.FrequencyCustom, Expression: "not cron"}},
	}

	tests := []struct {
		name    string
		pattern string
		count   int
		wantIDs []string
	}{
		{name: "all", pattern: "", count: 1, wantIDs: []string{"s2", "s1", "s3"}},
		{name: "glob prefix", pattern: "morning-*", count: 1, wantIDs: []string{"s2", "s1"}},
		{name: "alternation", pattern: "{evening,never}-*", count: 2, wantIDs: []string{"s3", "s3"}},
		{name: "count floor", pattern: "evening-all", count: 0, wantIDs: []string{"s3"}},
		{name: "no match", pattern: "weekly-*", count: 3, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fires, err := upcomingFires(list, tt.pattern, after, tt.count, time.UTC)
			if err != nil {
				t.Fatalf("upcomingFires() error = %v", err)
			}

			var ids []string
			for i, f := range fires {
				ids = append(ids, f.ID)
				if i > 0 && f.At.Before(fires[i-1].At) {
					t.Errorf("fires not sorted: %v before %v", f.At, fires[i-1].At)
				}
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}

	t.Run("invalid pattern", func(t *testing.T) {
		if _, err := upcomingFires(list, "[", after, 1, time.UTC); err == nil {
			t.Error("expected error for invalid glob")
		}
	})

	t.Run("first fire time", func(t *testing.T) {
		fires, err := upcomingFires(list, "morning-youtube", after, 2, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		want := []time.Time{
			time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC),
			time.Date(2025, 3, 11, 7, 30, 0, 0, time.UTC),
		}
		if len(fires) != len(want) {
			t.Fatalf("got %d fires, want %d", len(fires), len(want))
		}
		for i := range want {
			if !fires[i].At.Equal(want[i]) {
				t.Errorf("fire %d = %v, want %v", i, fires[i].At, want[i])
			}
		}
	})
}

func TestPrintFires(t *testing.T) {
	var buf bytes.Buffer
	if err := printFires(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No upcoming fires") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	at := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)
	if err := printFires(&buf, []upcomingFire{{At: at, ID: "s2", Name: "morning-youtube"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "2025-03-10T07:30:00Z") || !strings.Contains(out, "morning-youtube") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestPrintSessions(t *testing.T) {
	owners := map[string]*accounts.Account{
		"user-1_tiktok": {ID: "user-1_tiktok", OwnerID: "user-1", Platform: accounts.PlatformTikTok, Active: true},
	}

	var buf bytes.Buffer
	if err := printSessions(&buf, []string{"stray", "user-1_tiktok"}, owners); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "stray") || !strings.Contains(lines[1], "(orphan)") {
		t.Errorf("orphan row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "tiktok") || !strings.Contains(lines[2], "user-1") {
		t.Errorf("account row = %q", lines[2])
	}

	buf.Reset()
	if err := printSessions(&buf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No session profiles") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "clipcast.yaml")

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	configForce = false
	t.Cleanup(func() { configForce = false })

	if err := runConfigInit(cmd, []string{path}); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Errorf("output should name the file, got %q", out.String())
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Server.Port != config.DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, config.DefaultPort)
	}

	err = runConfigInit(cmd, []string{path})
	if !errors.Is(err, config.ErrConfigExists) {
		t.Fatalf("second init error = %v, want ErrConfigExists", err)
	}

	configForce = true
	if err := runConfigInit(cmd, []string{path}); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func TestPrintMigrations(t *testing.T) {
	dbCfg := config.Default().Database
	dbCfg.Path = filepath.Join(t.TempDir(), "clipcast.db")

	db, err := database.Open(&dbCfg)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	var buf bytes.Buffer
	if err := printMigrations(context.Background(), &buf, db.DB); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "001_init") || !strings.Contains(buf.String(), "No pending migrations") {
		t.Errorf("unexpected output: %q", buf.String())
	}

	fresh, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()

	buf.Reset()
	if err := printMigrations(context.Background(), &buf, fresh); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(pending)") || !strings.Contains(buf.String(), "1 pending migration") {
		t.Errorf("unexpected output for fresh database: %q", buf.String())
	}
}

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() {
		verbose = false
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		want    zerolog.Level
	}{
		{name: "warn", cfg: config.LoggingConfig{Level: "warn"}, want: zerolog.WarnLevel},
		{name: "json error", cfg: config.LoggingConfig{Level: "error", Format: "json", Caller: true}, want: zerolog.ErrorLevel},
		{name: "garbage falls back", cfg: config.LoggingConfig{Level: "loud"}, want: zerolog.InfoLevel},
		{name: "verbose wins", cfg: config.LoggingConfig{Level: "error"}, verbose: true, want: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verbose = tt.verbose
			setupLogging(tt.cfg)
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReloadLoggingWhileLogging(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		verbose = false
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	setupLogging(config.LoggingConfig{Level: "info", Format: "json"})
	log.Logger = zerolog.New(io.Discard)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				log.Info().Str("schedule_id", "s1").Msg("tick")
			}
		}
	}()

	levels := []string{"debug", "warn", "error", "info"}
	for i := 0; i < 2000; i++ {
		reloadLogging(config.LoggingConfig{Level: levels[i%len(levels)], Format: "console", Caller: i%2 == 0})
	}
	close(done)
	wg.Wait()

	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", got)
	}
	if activeLogging.Format != "json" {
		t.Errorf("reload must not rebuild the logger, active format = %q", activeLogging.Format)
	}
}

func TestConfigWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipcast.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 4)
	w, err := NewConfigWatcher(path, func(p string) { changed <- p })
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("changed path = %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config change")
	}

	// Debounced writes coalesce into the single event above.
	select {
	case got := <-changed:
		t.Errorf("unexpected second event for %q", got)
	case <-time.After(2 * watchDebounce):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(WithDebounce(10 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	w.Start(context.Background())
	if err := w.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
