package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/entity"
)

// Registry keeps scan job snapshots in memory for polling. Jobs are
// ephemeral by design: terminal jobs are swept after the retention period,
// and a restart forgets everything. Pollers must treat an unknown id as
// expired, not as an error in their own bookkeeping.
type Registry struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.ScanJob
	retention time.Duration
	logger    *slog.Logger
}

func NewRegistry(retention time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:      make(map[uuid.UUID]*entity.ScanJob),
		retention: retention,
		logger:    logger,
	}
}

// Create registers a new running job and returns its snapshot.
func (r *Registry) Create() entity.ScanJob {
	job := &entity.ScanJob{
		ID:        uuid.New(),
		Status:    constants.ScanStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return snapshot(job)
}

// Get returns a copy of the job, or false when it never existed or was
// already swept.
func (r *Registry) Get(id uuid.UUID) (entity.ScanJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return entity.ScanJob{}, false
	}
	return snapshot(job), true
}

// Update applies fn to the job under the registry lock. Unknown ids are
// ignored; the job may have been swept while its goroutine was running.
func (r *Registry) Update(id uuid.UUID, fn func(*entity.ScanJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// Sweep drops terminal jobs whose finish time is older than the retention
// period. Running jobs are never dropped regardless of age.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if !job.Status.Terminal() || job.FinishedAt == nil {
			continue
		}
		if now.Sub(*job.FinishedAt) > r.retention {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("swept expired scan jobs", "removed", removed, "remaining", len(r.jobs))
	}
	return removed
}

// RunSweeper sweeps on the given interval until the context is canceled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func snapshot(job *entity.ScanJob) entity.ScanJob {
	out := *job
	if job.Errors != nil {
		out.Errors = append([]string(nil), job.Errors...)
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
