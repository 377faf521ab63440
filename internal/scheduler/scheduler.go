package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// Job is a named periodic task.
type Job func(ctx context.Context) error

// Entry describes a registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type registered struct {
	id   cron.EntryID
	spec string
	fn   Job
}

// Scheduler runs named jobs on cron specs in UTC.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]registered
	running bool
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]registered),
	}
}

// AddJob registers fn under name. Spec accepts the standard five fields
// and descriptors such as "@every 10m".
func (s *Scheduler) AddJob(name, spec string, fn Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, spec, err)
	}
	s.jobs[name] = registered{id: id, spec: spec, fn: fn}
	return nil
}

// RunNow executes a registered job synchronously on the caller's goroutine.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return job.fn(s.ctx)
}

func (s *Scheduler) run(name string, fn Job) {
	started := time.Now()
	if err := fn(s.ctx); err != nil {
		log.Error("scheduled job failed", "job", name, "err", err)
		return
	}
	log.Debug("scheduled job finished", "job", name, "took", time.Since(started))
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop waits for running jobs to finish, then cancels the job context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Entries lists registered jobs with their next activation. Next is zero
// until the scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for name, j := range s.jobs {
		out = append(out, Entry{Name: name, Spec: j.spec, Next: s.cron.Entry(j.id).Next})
	}
	return out
}
