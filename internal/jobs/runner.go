package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Job names exposed by the runner.
const (
	JobDispatchWorker  = "dispatch-worker"
	JobReplyMatcher    = "reply-matcher"
	JobStatsAggregator = "stats-aggregator"
)

// JobFunc is one periodic unit of work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Runner executes registered jobs on local tickers and on demand via the
// HTTP trigger surface. Every run is guarded by a named lease so overlapping
// invocations skip rather than duplicate work, and every run is recorded in
// the cron log with its duration and outcome.
type Runner struct {
	leases      LeaseStore
	logs        CronLogRepository
	environment string
	owner       string
	jobs        map[string]*job
	order       []string
	stopChan    chan struct{}
}

// NewRunner creates a job runner. The owner id distinguishes this instance's
// lease claims from other instances'.
func NewRunner(leases LeaseStore, logs CronLogRepository, environment string) *Runner {
	return &Runner{
		leases:      leases,
		logs:        logs,
		environment: environment,
		owner:       uuid.New().String(),
		jobs:        make(map[string]*job),
		stopChan:    make(chan struct{}),
	}
}

// Register adds a named job with its local ticker interval.
func (r *Runner) Register(name string, interval time.Duration, fn JobFunc) {
	r.jobs[name] = &job{name: name, interval: interval, run: fn}
	r.order = append(r.order, name)
}

// Names returns the registered job names in registration order.
func (r *Runner) Names() []string {
	return r.order
}

// Start begins a ticker loop per job. Each job runs once immediately.
func (r *Runner) Start() {
	for _, name := range r.order {
		j := r.jobs[name]
		log.Printf("[Jobs] Starting %s (interval: %s)", j.name, j.interval)

		go func(j *job) {
			r.runGuarded(context.Background(), j)

			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					r.runGuarded(context.Background(), j)
				case <-r.stopChan:
					log.Printf("[Jobs] Stopped %s", j.name)
					return
				}
			}
		}(j)
	}
}

// Stop gracefully stops all ticker loops.
func (r *Runner) Stop() {
	close(r.stopChan)
}

// RunJob executes one registered job by name, for the HTTP trigger surface.
func (r *Runner) RunJob(ctx context.Context, name string) error {
	j, ok := r.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return r.runGuarded(ctx, j)
}

func (r *Runner) runGuarded(ctx context.Context, j *job) error {
	ttl := 2 * j.interval
	if ttl < 5*time.Minute {
		ttl = 5 * time.Minute
	}

	acquired, err := r.leases.Acquire(j.name, r.owner, ttl)
	if err != nil {
		log.Printf("[Jobs] %s: lease acquire failed: %v", j.name, err)
		return err
	}
	if !acquired {
		log.Printf("[Jobs] %s: lease held elsewhere, skipping run", j.name)
		return nil
	}
	defer func() {
		if err := r.leases.Release(j.name, r.owner); err != nil {
			log.Printf("[Jobs] %s: lease release failed: %v", j.name, err)
		}
	}()

	start := time.Now()
	runErr := r.execute(ctx, j)
	duration := time.Since(start)

	entry := &CronLog{
		JobName:     j.name,
		Success:     runErr == nil,
		DurationMS:  duration.Milliseconds(),
		Environment: r.environment,
		StartedAt:   start,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
		log.Printf("[Jobs] %s failed after %s: %v", j.name, duration, runErr)
	}
	if err := r.logs.Append(entry); err != nil {
		log.Printf("[Jobs] %s: cron log append failed: %v", j.name, err)
	}

	return runErr
}

// execute isolates panics so a crashing job cannot take down the host
// process; the panic is reported as a normal job failure.
func (r *Runner) execute(ctx context.Context, j *job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return j.run(ctx)
}
