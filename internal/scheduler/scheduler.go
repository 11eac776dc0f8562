// Package scheduler turns active schedules into cron triggers and runs one
// pipeline cycle per fire.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/metrics"
	"github.com/watzon/clipcast/internal/pipeline"
	"github.com/watzon/clipcast/internal/schedules"
)

var (
	// ErrNotRegistered is returned by Trigger for unknown schedule ids.
	ErrNotRegistered = errors.New("schedule is not registered")

	// ErrCycleRunning is returned by Trigger while a cycle of the schedule is in flight.
	ErrCycleRunning = errors.New("a cycle for this schedule is already running")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")
)

// Cycle status values stored in scheduler state.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Runner executes one cycle of a schedule.
type Runner interface {
	RunCycle(ctx context.Context, s *schedules.Schedule) (*pipeline.CycleReport, error)
}

// Result describes a finished cycle.
type Result struct {
	ScheduleID string
	FiredAt    time.Time
	FinishedAt time.Time
	Report     *pipeline.CycleReport
	Err        error
}

// Options configure a Scheduler.
type Options struct {
	// Location evaluates schedules that have no timezone. Defaults to time.Local.
	Location *time.Location
	// Catchup runs a single cycle at bootstrap for schedules that missed fires.
	Catchup bool
	// OnResult, if set, is called from the result loop after each cycle is recorded.
	OnResult func(Result)
}

type trigger struct {
	entryID  cron.EntryID
	schedule *schedules.Schedule
	compiled *compiled
}

// TriggerInfo is a read-only view of a registered trigger.
type TriggerInfo struct {
	ScheduleID string    `json:"schedule_id"`
	Name       string    `json:"name"`
	Spec       string    `json:"spec"`
	Timezone   string    `json:"timezone"`
	Next       time.Time `json:"next"`
}

// Scheduler owns the live triggers.
type Scheduler struct {
	runner Runner
	state  *StateStore
	opts   Options

	cron *cron.Cron

	mu       sync.Mutex
	triggers map[string]*trigger

	runningMu sync.Mutex
	running   map[string]bool
	stopping  bool

	results chan Result
	cycles  sync.WaitGroup
	loop    sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler. state may be nil, which disables persistence and catch-up.
func New(runner Runner, state *StateStore, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:   runner,
		state:    state,
		opts:     opts,
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(opts.Location)),
		triggers: make(map[string]*trigger),
		running:  make(map[string]bool),
		results:  make(chan Result, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Location returns the default timezone for schedules without one.
func (s *Scheduler) Location() *time.Location {
	return s.opts.Location
}

// Running reports whether Start has been called and Stop has not.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return started && !s.stopping
}

// Start begins firing triggers and processing results. Cancelling ctx aborts
// in-flight cycles.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	context.AfterFunc(ctx, s.cancel)

	s.loop.Add(1)
	go s.resultLoop()
	s.cron.Start()

	log.Info().
		Str("timezone", s.opts.Location.String()).
		Int("triggers", len(s.triggers)).
		Msg("Scheduler started")
}

// Stop halts cron, waits for in-flight cycles until ctx is done and drains results.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.runningMu.Lock()
	if s.stopping {
		s.runningMu.Unlock()
		return nil
	}
	s.stopping = true
	s.runningMu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.cycles.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		log.Warn().Msg("Scheduler stop timed out, abandoning in-flight cycles")
		return fmt.Errorf("waiting for cycles: %w", ctx.Err())
	}

	close(s.results)
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.loop.Wait()
	}
	s.cancel()

	log.Info().Msg("Scheduler stopped")
	return nil
}

// Register creates the trigger for sched, replacing any existing one.
func (s *Scheduler) Register(sched *schedules.Schedule) error {
	c, err := compile(sched, s.opts.Location)
	if err != nil {
		return err
	}

	snapshot := sched.Clone()
	id := snapshot.ID

	s.mu.Lock()
	if old, ok := s.triggers[id]; ok {
		s.cron.Remove(old.entryID)
	}
	entryID := s.cron.Schedule(c.schedule, cron.FuncJob(func() { s.fire(id) }))
	s.triggers[id] = &trigger{entryID: entryID, schedule: snapshot, compiled: c}
	count := len(s.triggers)
	s.mu.Unlock()

	metrics.SetActiveTriggers(count)

	next := c.schedule.Next(time.Now().In(c.location))
	s.persistNext(id, next)

	log.Info().
		Str("schedule_id", id).
		Str("spec", c.spec).
		Str("timezone", c.location.String()).
		Time("next_fire", next).
		Msg("Schedule registered")

	return nil
}

// Deregister removes the trigger for id. In-flight cycles are left to finish.
func (s *Scheduler) Deregister(id string) bool {
	s.mu.Lock()
	t, ok := s.triggers[id]
	if ok {
		s.cron.Remove(t.entryID)
		delete(s.triggers, id)
	}
	count := len(s.triggers)
	s.mu.Unlock()

	if !ok {
		return false
	}

	metrics.SetActiveTriggers(count)
	log.Info().Str("schedule_id", id).Msg("Schedule deregistered")
	return true
}

// Reregister applies an edited schedule. When only content or targets changed
// the live entry keeps its timing and just picks up the new snapshot; otherwise
// it is removed and registered again if active.
func (s *Scheduler) Reregister(sched *schedules.Schedule) error {
	s.mu.Lock()
	if t, ok := s.triggers[sched.ID]; ok && !sched.TimingChanged(t.schedule) {
		t.schedule = sched.Clone()
		s.mu.Unlock()
		log.Debug().Str("schedule_id", sched.ID).Msg("Schedule content updated")
		return nil
	}
	s.mu.Unlock()

	s.Deregister(sched.ID)
	if !sched.Active {
		return nil
	}
	return s.Register(sched)
}

// Registered reports whether id has a live trigger.
func (s *Scheduler) Registered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[id]
	return ok
}

// Triggers lists the live triggers ordered by next fire.
func (s *Scheduler) Triggers() []TriggerInfo {
	s.mu.Lock()
	infos := make([]TriggerInfo, 0, len(s.triggers))
	for id, t := range s.triggers {
		infos = append(infos, TriggerInfo{
			ScheduleID: id,
			Name:       t.schedule.Name,
			Spec:       t.compiled.spec,
			Timezone:   t.compiled.location.String(),
			Next:       t.compiled.schedule.Next(time.Now().In(t.compiled.location)),
		})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Next.Equal(infos[j].Next) {
			return infos[i].ScheduleID < infos[j].ScheduleID
		}
		return infos[i].Next.Before(infos[j].Next)
	})
	return infos
}

// NextFire computes the next fire of sched after after using the default timezone.
func (s *Scheduler) NextFire(sched *schedules.Schedule, after time.Time) (time.Time, error) {
	return NextFire(sched, after, s.opts.Location)
}

// Trigger runs a registered schedule now.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	t, ok := s.triggers[id]
	var snapshot *schedules.Schedule
	if ok {
		snapshot = t.schedule.Clone()
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return s.dispatch(snapshot, time.Now())
}

// fire is invoked by cron. It never blocks on the cycle.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	t, ok := s.triggers[id]
	var snapshot *schedules.Schedule
	if ok {
		snapshot = t.schedule.Clone()
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.dispatch(snapshot, time.Now()); err != nil && !errors.Is(err, ErrStopped) {
		log.Warn().Err(err).Str("schedule_id", id).Msg("Fire skipped")
	}
}

// dispatch starts a cycle goroutine unless one is already running for the schedule.
func (s *Scheduler) dispatch(sched *schedules.Schedule, firedAt time.Time) error {
	s.runningMu.Lock()
	if s.stopping {
		s.runningMu.Unlock()
		return ErrStopped
	}
	if s.running[sched.ID] {
		s.runningMu.Unlock()
		metrics.RecordFire(metrics.FireSkipped)
		return ErrCycleRunning
	}
	s.running[sched.ID] = true
	s.cycles.Add(1)
	s.runningMu.Unlock()

	metrics.RecordFire(metrics.FireDispatched)

	go func() {
		defer s.cycles.Done()

		res := s.runCycle(sched, firedAt)

		s.runningMu.Lock()
		delete(s.running, sched.ID)
		s.runningMu.Unlock()

		s.results <- res
	}()

	return nil
}

func (s *Scheduler) runCycle(sched *schedules.Schedule, firedAt time.Time) (res Result) {
	res = Result{ScheduleID: sched.ID, FiredAt: firedAt}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("cycle panic: %v", r)
		}
		res.FinishedAt = time.Now()
	}()

	log.Debug().Str("schedule_id", sched.ID).Str("name", sched.Name).Msg("Schedule fired")

	res.Report, res.Err = s.runner.RunCycle(s.ctx, sched)
	return res
}

func (s *Scheduler) resultLoop() {
	defer s.loop.Done()

	for res := range s.results {
		s.record(res)
	}
}

func (s *Scheduler) record(res Result) {
	status := StatusOK
	errText := ""
	if res.Err != nil {
		status = StatusError
		errText = res.Err.Error()
		log.Error().
			Err(res.Err).
			Str("schedule_id", res.ScheduleID).
			Msg("Cycle failed")
	}
	metrics.RecordCycle(status)

	if s.state != nil {
		var next *time.Time
		s.mu.Lock()
		if t, ok := s.triggers[res.ScheduleID]; ok {
			n := t.compiled.schedule.Next(time.Now().In(t.compiled.location))
			next = &n
		}
		s.mu.Unlock()

		if err := s.state.RecordFire(context.Background(), res.ScheduleID, res.FiredAt, next, status, errText); err != nil {
			log.Error().Err(err).Str("schedule_id", res.ScheduleID).Msg("Failed to persist scheduler state")
		}
	}

	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
	}
}

func (s *Scheduler) persistNext(id string, next time.Time) {
	if s.state == nil || next.IsZero() {
		return
	}
	if err := s.state.SetNextFire(context.Background(), id, next); err != nil {
		log.Error().Err(err).Str("schedule_id", id).Msg("Failed to persist next fire")
	}
}
