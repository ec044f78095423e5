// Package scheduler drives the generation orchestrator on the configured
// cron-like cadence: one job per daily fire-time, or one hourly job at a
// fixed minute. Jobs are tagged so a configuration reload replaces the
// existing set instead of piling up duplicates, and singleton mode coalesces
// missed fires into at most one catch-up run.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const generationTag = "generation"

// Mode selects the firing cadence.
type Mode string

const (
	ModeDaily  Mode = "daily"
	ModeHourly Mode = "hourly"
)

// Config is the scheduler section of the service configuration.
type Config struct {
	Mode         Mode     `yaml:"mode"`
	DailyTimes   []string `yaml:"daily_times"` // HH:MM, business timezone
	MinuteOfHour int      `yaml:"minute_of_hour"`
}

// Validate checks the section without installing jobs: daily mode needs at
// least one well-formed fire time, hourly mode a minute in range.
func (c Config) Validate() error {
	_, err := cronExprs(c)
	return err
}

// RunFunc is the job body: one generation attempt for the default template.
type RunFunc func(ctx context.Context)

// Scheduler wraps the cron engine.
type Scheduler struct {
	engine gocron.Scheduler
	run    RunFunc
}

// New builds a scheduler firing in the given location.
func New(loc *time.Location, run RunFunc) (*Scheduler, error) {
	engine, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{engine: engine, run: run}, nil
}

// Apply installs the configured jobs, replacing any previously installed
// generation jobs.
func (s *Scheduler) Apply(cfg Config) error {
	s.engine.RemoveByTags(generationTag)

	crons, err := cronExprs(cfg)
	if err != nil {
		return err
	}

	for id, expr := range crons {
		_, err := s.engine.NewJob(
			gocron.CronJob(expr, false),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				s.run(ctx)
			}),
			gocron.WithName(id),
			gocron.WithTags(generationTag),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("install job %s: %w", id, err)
		}
		log.Info().Str("job", id).Str("cron", expr).Msg("scheduled generation job")
	}
	return nil
}

// Jobs returns the number of installed generation jobs.
func (s *Scheduler) Jobs() int {
	return len(s.engine.Jobs())
}

// Start begins firing. Stop with Shutdown.
func (s *Scheduler) Start() {
	s.engine.Start()
}

// Shutdown stops the engine and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.engine.Shutdown()
}

// cronExprs translates the config into job-id → cron expression pairs.
func cronExprs(cfg Config) (map[string]string, error) {
	out := make(map[string]string)
	switch cfg.Mode {
	case ModeDaily:
		if len(cfg.DailyTimes) == 0 {
			return nil, fmt.Errorf("daily mode requires at least one fire time")
		}
		for _, at := range cfg.DailyTimes {
			var hh, mm int
			if _, err := fmt.Sscanf(at, "%d:%d", &hh, &mm); err != nil ||
				hh < 0 || hh > 23 || mm < 0 || mm > 59 {
				return nil, fmt.Errorf("invalid daily fire time %q", at)
			}
			out[fmt.Sprintf("generate@%02d:%02d", hh, mm)] = fmt.Sprintf("%d %d * * *", mm, hh)
		}
	case ModeHourly:
		if cfg.MinuteOfHour < 0 || cfg.MinuteOfHour > 59 {
			return nil, fmt.Errorf("minute_of_hour %d out of range", cfg.MinuteOfHour)
		}
		out[fmt.Sprintf("generate@hourly:%02d", cfg.MinuteOfHour)] =
			fmt.Sprintf("%d * * * *", cfg.MinuteOfHour)
	default:
		return nil, fmt.Errorf("unknown scheduler mode %q", cfg.Mode)
	}
	return out, nil
}
