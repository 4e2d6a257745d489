package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docreader/internal/repository"
)

// Monitor marks ACTIVE jobs with a stale heartbeat as STUCK. It never retries them.
type Monitor struct {
	jobs       repository.JobRepository
	stuckAfter time.Duration
	interval   time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewMonitor(jobs repository.JobRepository, stuckAfter, interval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{jobs: jobs, stuckAfter: stuckAfter, interval: interval, log: log, now: time.Now}
}

// Sweep runs one pass and returns how many jobs it marked.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.stuckAfter)
	ids, err := m.jobs.MarkStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		m.log.Warn("job marked stuck", "job_id", id, "stale_since", cutoff)
	}
	return len(ids), nil
}

// Run sweeps every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	m.log.Info("stuck-job monitor started", "stuck_after", m.stuckAfter, "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("stuck-job monitor stopped")
			return
		case <-t.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.log.Error("stuck-job sweep failed", "err", err)
			}
		}
	}
}
