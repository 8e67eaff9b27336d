package scan

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/entity"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	job := r.Create()

	got, ok := r.Get(job.ID)
	if !ok {
		t.Fatal("created job not found")
	}
	if got.Status != constants.ScanStatusRunning {
		t.Fatalf("status = %s, want RUNNING", got.Status)
	}
	if got.StartedAt.IsZero() {
		t.Fatal("started_at not set")
	}
}

func TestRegistryUnknownID(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	if _, ok := r.Get(uuid.New()); ok {
		t.Fatal("unknown id must not resolve")
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	job := r.Create()
	r.Update(job.ID, func(j *entity.ScanJob) { j.Errors = append(j.Errors, "one") })

	snap, _ := r.Get(job.ID)
	snap.Errors[0] = "mutated"
	snap.Processed = 99

	fresh, _ := r.Get(job.ID)
	if fresh.Errors[0] != "one" || fresh.Processed != 0 {
		t.Fatal("snapshot mutation leaked into the registry")
	}
}

func TestRegistrySweepDropsOnlyAgedTerminalJobs(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	now := time.Now().UTC()

	oldDone := r.Create()
	finished := now.Add(-2 * time.Hour)
	r.Update(oldDone.ID, func(j *entity.ScanJob) {
		j.Status = constants.ScanStatusDone
		j.FinishedAt = &finished
	})

	freshDone := r.Create()
	justNow := now.Add(-time.Minute)
	r.Update(freshDone.ID, func(j *entity.ScanJob) {
		j.Status = constants.ScanStatusDone
		j.FinishedAt = &justNow
	})

	running := r.Create() // old but still running

	if removed := r.Sweep(now); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := r.Get(oldDone.ID); ok {
		t.Fatal("aged terminal job survived the sweep")
	}
	if _, ok := r.Get(freshDone.ID); !ok {
		t.Fatal("fresh terminal job was swept")
	}
	if _, ok := r.Get(running.ID); !ok {
		t.Fatal("running job was swept")
	}
}
