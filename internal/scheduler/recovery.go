package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/schedules"
)

// missedLimit caps how far back missed fires are counted.
const missedLimit = 1000

// BootstrapReport summarises a Bootstrap call.
type BootstrapReport struct {
	Registered []string
	Failed     map[string]error
	// Missed maps schedule ids to the number of fires lost while the process was down.
	Missed map[string]int
	// CaughtUp lists schedules that got a catch-up cycle.
	CaughtUp []string
}

// Bootstrap registers every active schedule. A failing schedule is logged and
// skipped; it never prevents the others from registering.
func (s *Scheduler) Bootstrap(ctx context.Context, list []*schedules.Schedule) BootstrapReport {
	report := BootstrapReport{
		Failed: make(map[string]error),
		Missed: make(map[string]int),
	}
	now := time.Now()

	log.Info().
		Int("count", len(list)).
		Bool("catchup_enabled", s.opts.Catchup).
		Msg("Bootstrapping schedules")

	for _, sched := range list {
		if !sched.Active {
			log.Debug().Str("schedule_id", sched.ID).Msg("Skipping inactive schedule")
			continue
		}

		prevNext := s.previousNextFire(ctx, sched.ID)

		if err := s.Register(sched); err != nil {
			report.Failed[sched.ID] = err
			log.Error().
				Err(err).
				Str("schedule_id", sched.ID).
				Str("name", sched.Name).
				Msg("Failed to register schedule")
			continue
		}
		report.Registered = append(report.Registered, sched.ID)

		if prevNext == nil {
			continue
		}

		missed := s.countMissed(sched, *prevNext, now)
		if missed == 0 {
			continue
		}
		report.Missed[sched.ID] = missed

		log.Info().
			Str("schedule_id", sched.ID).
			Int("missed_count", missed).
			Time("missed_since", *prevNext).
			Msg("Detected missed fires during downtime")

		if !s.opts.Catchup {
			continue
		}

		// One cycle regardless of how many fires were lost, so nothing is posted twice.
		if err := s.dispatch(sched.Clone(), now); err != nil {
			log.Warn().Err(err).Str("schedule_id", sched.ID).Msg("Catch-up cycle not started")
			continue
		}
		report.CaughtUp = append(report.CaughtUp, sched.ID)
	}

	log.Info().
		Int("registered", len(report.Registered)).
		Int("failed", len(report.Failed)).
		Int("caught_up", len(report.CaughtUp)).
		Msg("Bootstrap complete")

	return report
}

func (s *Scheduler) previousNextFire(ctx context.Context, id string) *time.Time {
	if s.state == nil {
		return nil
	}

	state, err := s.state.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("schedule_id", id).Msg("Failed to load scheduler state")
		return nil
	}
	if state == nil {
		return nil
	}
	return state.NextFireAt
}

func (s *Scheduler) countMissed(sched *schedules.Schedule, from, now time.Time) int {
	c, err := compile(sched, s.opts.Location)
	if err != nil {
		return 0
	}
	return missedFires(c, from.In(c.location), now, missedLimit)
}
