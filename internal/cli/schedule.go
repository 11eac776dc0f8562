package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/scheduler"
	"github.com/watzon/clipcast/internal/schedules"
)

var (
	scheduleMatch string
	scheduleCount int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect publishing schedules",
}

var scheduleNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show upcoming fire times of active schedules",
	Long: `Print the next fire times of every active schedule, earliest first.

--match filters schedules by name with a glob pattern:
  clipcast schedule next --match 'morning-*'
  clipcast schedule next --match '{daily,weekly}-?' --count 5`,
	Args: cobra.NoArgs,
	RunE: runScheduleNext,
}

func init() {
	scheduleNextCmd.Flags().StringVarP(&scheduleMatch, "match", "m", "", "Glob matched against schedule names")
	scheduleNextCmd.Flags().IntVarP(&scheduleCount, "count", "n", 3, "Fire times to show per schedule")

	scheduleCmd.AddCommand(scheduleNextCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// upcomingFire is one predicted fire of a schedule.
type upcomingFire struct {
	At   time.Time
	ID   string
	Name string
}

func runScheduleNext(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc := time.Local
	if cfg.Scheduler.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			return fmt.Errorf("loading scheduler timezone: %w", err)
		}
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	list, err := schedules.NewStore(db).ListActive(cmd.Context())
	if err != nil {
		return err
	}

	fires, err := upcomingFires(list, scheduleMatch, time.Now(), scheduleCount, loc)
	if err != nil {
		return err
	}
	return printFires(cmd.OutOrStdout(), fires)
}

// upcomingFires predicts the next count fires of each schedule whose name
// matches pattern, sorted by time. Schedules with a bad recurrence are skipped.
func upcomingFires(list []*schedules.Schedule, pattern string, after time.Time, count int, loc *time.Location) ([]upcomingFire, error) {
	var matcher glob.Glob
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --match pattern %q: %w", pattern, err)
		}
		matcher = g
	}
	if count < 1 {
		count = 1
	}

	var out []upcomingFire
	for _, s := range list {
		if matcher != nil && !matcher.Match(s.Name) {
			continue
		}

		times, err := scheduler.UpcomingFires(s, after, count, loc)
		if err != nil {
			log.Warn().Err(err).Str("schedule_id", s.ID).Msg("Skipping schedule with invalid recurrence")
			continue
		}
		for _, t := range times {
			out = append(out, upcomingFire{At: t, ID: s.ID, Name: s.Name})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

func printFires(out io.Writer, fires []upcomingFire) error {
	if len(fires) == 0 {
		_, err := fmt.Fprintln(out, "No upcoming fires.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSCHEDULE\tID")
	for _, f := range fires {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.At.Format(time.RFC3339), f.Name, f.ID)
	}
	return tw.Flush()
}
