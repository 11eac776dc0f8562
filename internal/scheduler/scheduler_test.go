package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/clipcast/internal/pipeline"
	"github.com/watzon/clipcast/internal/schedules"
)

// fakeRunner records calls and can block or fail on demand.
type fakeRunner struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
	panic bool
}

func (r *fakeRunner) RunCycle(ctx context.Context, s *schedules.Schedule) (*pipeline.CycleReport, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.panic {
		panic("pipeline blew up")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.CycleReport{ScheduleID: s.ID, Posted: len(s.AccountIDs)}, nil
}

type harness struct {
	sched   *Scheduler
	runner  *fakeRunner
	results chan Result
}

func newHarness(t *testing.T, state *StateStore, catchup bool) *harness {
	t.Helper()

	h := &harness{runner: &fakeRunner{}, results: make(chan Result, 16)}
	h.sched = New(h.runner, state, Options{
		Location: time.UTC,
		Catchup:  catchup,
		OnResult: func(r Result) { h.results <- r },
	})
	h.sched.Start(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.sched.Stop(ctx)
	})
	return h
}

func (h *harness) waitResult(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cycle result")
		return Result{}
	}
}

func TestScheduler_RegisterTwiceKeepsOneEntry(t *testing.T) {
	h := newHarness(t, nil, false)

	s := daily("s1", "08:00")
	if err := h.sched.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	s.Recurrence.Time = "09:30"
	if err := h.sched.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if n := len(h.sched.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
	triggers := h.sched.Triggers()
	if len(triggers) != 1 || triggers[0].Spec != "30 9 * * *" {
		t.Errorf("Triggers() = %+v, want the 09:30 trigger only", triggers)
	}
}

func TestScheduler_RegisterInvalid(t *testing.T) {
	h := newHarness(t, nil, false)

	s := daily("bad", "25:00")
	err := h.sched.Register(s)
	if !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("Register() error = %v, want ErrInvalidRecurrence", err)
	}
	if h.sched.Registered("bad") {
		t.Error("invalid schedule must not be registered")
	}
}

func TestScheduler_DoubleDeregister(t *testing.T) {
	h := newHarness(t, nil, false)

	if err := h.sched.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !h.sched.Deregister("s1") {
		t.Error("first Deregister() = false, want true")
	}
	if h.sched.Deregister("s1") {
		t.Error("second Deregister() = true, want false")
	}
	if n := len(h.sched.cron.Entries()); n != 0 {
		t.Errorf("cron entries = %d, want 0", n)
	}
}

func TestScheduler_Reregister(t *testing.T) {
	h := newHarness(t, nil, false)
	s := daily("s1", "08:00")

	if err := h.sched.Reregister(s); err != nil {
		t.Fatalf("Reregister() error = %v", err)
	}
	if !h.sched.Registered("s1") {
		t.Fatal("active schedule should be registered")
	}

	s.Active = false
	if err := h.sched.Reregister(s); err != nil {
		t.Fatalf("Reregister() error = %v", err)
	}
	if h.sched.Registered("s1") {
		t.Error("inactive schedule should be deregistered")
	}
}

func TestScheduler_ReregisterKeepsEntryForContentEdits(t *testing.T) {
	h := newHarness(t, nil, false)
	s := daily("s1", "08:00")
	if err := h.sched.Register(s); err != nil {
		t.Fatal(err)
	}

	entryOf := func() cron.EntryID {
		h.sched.mu.Lock()
		defer h.sched.mu.Unlock()
		return h.sched.triggers["s1"].entryID
	}
	before := entryOf()

	edited := s.Clone()
	edited.Name = "renamed"
	edited.AccountIDs = []string{"a1", "a9"}
	if err := h.sched.Reregister(edited); err != nil {
		t.Fatalf("Reregister() error = %v", err)
	}
	if got := entryOf(); got != before {
		t.Errorf("content edit replaced cron entry %d with %d", before, got)
	}
	h.sched.mu.Lock()
	snap := h.sched.triggers["s1"].schedule
	h.sched.mu.Unlock()
	if snap.Name != "renamed" || len(snap.AccountIDs) != 2 {
		t.Errorf("snapshot not refreshed: %+v", snap)
	}

	edited = edited.Clone()
	edited.Recurrence.Time = "09:30"
	if err := h.sched.Reregister(edited); err != nil {
		t.Fatalf("Reregister() error = %v", err)
	}
	if got := entryOf(); got == before {
		t.Error("timing edit should replace the cron entry")
	}
}

func TestScheduler_SnapshotIsolatedFromCaller(t *testing.T) {
	h := newHarness(t, nil, false)
	s := daily("s1", "08:00")
	if err := h.sched.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.AccountIDs[0] = "mutated"
	s.Name = "renamed"

	if got := h.sched.Triggers()[0].Name; got != "daily 08:00" {
		t.Errorf("trigger name = %q, caller edits leaked into the snapshot", got)
	}
}

func TestScheduler_BootstrapWithMalformedSchedule(t *testing.T) {
	h := newHarness(t, nil, false)

	good1 := daily("good-1", "08:00")
	bad := daily("bad", "8:00pm")
	inactive := daily("off", "10:00")
	inactive.Active = false
	good2 := daily("good-2", "09:30")

	report := h.sched.Bootstrap(context.Background(), []*schedules.Schedule{good1, bad, inactive, good2})

	if len(report.Registered) != 2 {
		t.Errorf("Registered = %v, want good-1 and good-2", report.Registered)
	}
	if err, ok := report.Failed["bad"]; !ok || !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("Failed = %v, want bad with ErrInvalidRecurrence", report.Failed)
	}
	if h.sched.Registered("off") {
		t.Error("inactive schedule should not be registered")
	}
	if n := len(h.sched.cron.Entries()); n != 2 {
		t.Errorf("cron entries = %d, want 2", n)
	}
}

func TestScheduler_PipelineErrorKeepsTrigger(t *testing.T) {
	h := newHarness(t, nil, false)
	h.runner.err = errors.New("content service down")

	if err := h.sched.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := h.sched.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	res := h.waitResult(t)
	if res.Err == nil {
		t.Fatal("expected the cycle error to be reported")
	}
	if !h.sched.Registered("s1") {
		t.Fatal("a failing cycle must not deregister the trigger")
	}

	h.runner.err = nil
	h.runner.panic = true
	if err := h.sched.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	res = h.waitResult(t)
	if res.Err == nil {
		t.Fatal("expected the panic to be reported as an error")
	}
	if !h.sched.Registered("s1") {
		t.Fatal("a panicking cycle must not deregister the trigger")
	}
}

func TestScheduler_SkipIfRunning(t *testing.T) {
	h := newHarness(t, nil, false)
	h.runner.gate = make(chan struct{})

	if err := h.sched.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := h.sched.Trigger("s1"); err != nil {
		t.Fatalf("first Trigger() error = %v", err)
	}
	if err := h.sched.Trigger("s1"); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("second Trigger() error = %v, want ErrCycleRunning", err)
	}

	close(h.runner.gate)
	h.waitResult(t)

	if err := h.sched.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() after completion error = %v", err)
	}
	h.waitResult(t)

	if n := h.runner.calls.Load(); n != 2 {
		t.Errorf("runner calls = %d, want 2", n)
	}
}

func TestScheduler_TriggerUnknown(t *testing.T) {
	h := newHarness(t, nil, false)

	if err := h.sched.Trigger("ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Trigger() error = %v, want ErrNotRegistered", err)
	}
}

func TestScheduler_Running(t *testing.T) {
	s := New(&fakeRunner{}, nil, Options{Location: time.UTC})
	if s.Running() {
		t.Error("scheduler should not report running before Start")
	}

	s.Start(context.Background())
	if !s.Running() {
		t.Error("scheduler should report running after Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Running() {
		t.Error("scheduler should not report running after Stop")
	}
}

func TestScheduler_CronFires(t *testing.T) {
	h := newHarness(t, nil, false)

	s := daily("tick", "")
	s.Recurrence = schedules.Recurrence{Frequency: schedules.FrequencyCustom, Expression: "@every 1s"}
	if err := h.sched.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := h.waitResult(t)
	if res.ScheduleID != "tick" || res.Err != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Report == nil || res.Report.Posted != 1 {
		t.Errorf("Report = %+v, want one posted", res.Report)
	}
}

func TestScheduler_StopWaitsForCycles(t *testing.T) {
	runner := &fakeRunner{gate: make(chan struct{})}
	var recorded atomic.Int32
	s := New(runner, nil, Options{Location: time.UTC, OnResult: func(Result) { recorded.Add(1) }})
	s.Start(context.Background())

	if err := s.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var stopErr error
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopErr = s.Stop(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	if stopErr != nil {
		t.Fatalf("Stop() error = %v", stopErr)
	}
	if recorded.Load() != 1 {
		t.Errorf("recorded results = %d, want the in-flight cycle drained", recorded.Load())
	}
	if err := s.Trigger("s1"); !errors.Is(err, ErrStopped) {
		t.Errorf("Trigger() after Stop error = %v, want ErrStopped", err)
	}
}

func TestScheduler_StopTimeout(t *testing.T) {
	runner := &fakeRunner{gate: make(chan struct{})}
	s := New(runner, nil, Options{Location: time.UTC})
	s.Start(context.Background())

	if err := s.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want DeadlineExceeded", err)
	}
}

func TestScheduler_RecordsState(t *testing.T) {
	state := NewStateStore(testDB(t))
	h := newHarness(t, state, false)

	if err := h.sched.Register(daily("s1", "08:00")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	st, err := state.Get(context.Background(), "s1")
	if err != nil || st == nil || st.NextFireAt == nil {
		t.Fatalf("expected next fire persisted on register, got %+v, %v", st, err)
	}

	if err := h.sched.Trigger("s1"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	h.waitResult(t)

	st, _ = state.Get(context.Background(), "s1")
	if st.FireCount != 1 || st.LastStatus != StatusOK || st.LastFireAt == nil {
		t.Errorf("state = %+v, want one ok fire", st)
	}
}

func TestScheduler_BootstrapCatchup(t *testing.T) {
	db := testDB(t)
	state := NewStateStore(db)
	ctx := context.Background()

	// The process was down for three days.
	missedSince := time.Now().UTC().Add(-72 * time.Hour)
	for _, id := range []string{"s1", "s2"} {
		if err := state.SetNextFire(ctx, id, missedSince); err != nil {
			t.Fatalf("SetNextFire() error = %v", err)
		}
	}

	h := newHarness(t, state, true)
	report := h.sched.Bootstrap(ctx, []*schedules.Schedule{daily("s1", "08:00")})

	if report.Missed["s1"] < 3 {
		t.Errorf("Missed = %v, want at least 3 for s1", report.Missed)
	}
	if len(report.CaughtUp) != 1 || report.CaughtUp[0] != "s1" {
		t.Fatalf("CaughtUp = %v, want [s1]", report.CaughtUp)
	}

	h.waitResult(t)
	select {
	case r := <-h.results:
		t.Fatalf("catch-up must run a single cycle, got another result %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	if n := h.runner.calls.Load(); n != 1 {
		t.Errorf("runner calls = %d, want 1", n)
	}
}

func TestScheduler_BootstrapWithoutCatchup(t *testing.T) {
	state := NewStateStore(testDB(t))
	ctx := context.Background()

	if err := state.SetNextFire(ctx, "s1", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("SetNextFire() error = %v", err)
	}

	h := newHarness(t, state, false)
	report := h.sched.Bootstrap(ctx, []*schedules.Schedule{daily("s1", "08:00")})

	if report.Missed["s1"] == 0 {
		t.Error("missed fires should still be detected")
	}
	if len(report.CaughtUp) != 0 {
		t.Errorf("CaughtUp = %v, want none", report.CaughtUp)
	}

	time.Sleep(50 * time.Millisecond)
	if n := h.runner.calls.Load(); n != 0 {
		t.Errorf("runner calls = %d, want 0", n)
	}
}
