// Package scheduler runs the background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobInfo describes a registered job
type JobInfo struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Next     *time.Time `json:"next,omitempty"`
	Prev     *time.Time `json:"prev,omitempty"`
}

type registration struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]registration
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules have a seconds field and are
// interpreted in loc (UTC when nil). A job still running when its next
// tick arrives is skipped for that tick.
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	l := log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		jobs: make(map[string]registration),
		log:  l,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule
// Schedule examples:
//   - "0 30 6 * * *"       - 06:30 every day
//   - "0 0 6 * * MON-FRI"  - 06:00 weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("duration", time.Since(start)).
				Msg("Job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job completed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}

	s.jobs[job.Name()] = registration{id: id, schedule: schedule, job: job}
	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// RunByName executes a registered job immediately
func (s *Scheduler) RunByName(name string) error {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.RunNow(reg.job)
}

// Jobs lists registered jobs by name with their next and previous run times
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, reg := range s.jobs {
		info := JobInfo{Name: name, Schedule: reg.schedule}
		entry := s.cron.Entry(reg.id)
		if !entry.Next.IsZero() {
			next := entry.Next
			info.Next = &next
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			info.Prev = &prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes cron's own messages through zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
