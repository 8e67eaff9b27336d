package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/audit"
	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/extract"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/match"
	"github.com/finledger/invoice-recon/internal/repository"
)

// Request describes one scan invocation.
type Request struct {
	Scope        entity.Scope
	RootFolderID string
	// ForceRescan purges the scope's cache first so every file is
	// re-extracted and re-matched.
	ForceRescan bool
}

// Orchestrator drives a full scan: list, download, extract, match, cache.
// One file's failure is recorded on the job and never aborts the run; only
// setup failures (purge, listing) are systemic.
type Orchestrator struct {
	lister          *filestore.Lister
	store           filestore.Client
	cache           repository.InvoiceCacheRepository
	engine          *match.Engine
	pipeline        *extract.Pipeline
	registry        *Registry
	downloadTimeout time.Duration
	logger          *slog.Logger
}

func NewOrchestrator(
	lister *filestore.Lister,
	store filestore.Client,
	cache repository.InvoiceCacheRepository,
	engine *match.Engine,
	pipeline *extract.Pipeline,
	registry *Registry,
	downloadTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if downloadTimeout <= 0 {
		downloadTimeout = time.Minute
	}
	return &Orchestrator{
		lister:          lister,
		store:           store,
		cache:           cache,
		engine:          engine,
		pipeline:        pipeline,
		registry:        registry,
		downloadTimeout: downloadTimeout,
		logger:          logger,
	}
}

// StartScan registers a job and runs the scan on its own goroutine. The
// returned channel closes when the run finishes; pollers should use the
// registry, the channel exists for callers that need to block (CLI, tests).
func (o *Orchestrator) StartScan(ctx context.Context, req Request) (uuid.UUID, <-chan struct{}) {
	job := o.registry.Create()
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.run(ctx, job.ID, req)
	}()
	return job.ID, done
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID, req Request) {
	logger := o.logger.With("job_id", jobID, "scope", req.Scope.String())
	logger.Info("scan started", "root_folder", req.RootFolderID, "force_rescan", req.ForceRescan)

	if req.ForceRescan {
		if _, err := o.cache.DeleteByScope(ctx, req.Scope); err != nil {
			o.fail(jobID, logger, fmt.Errorf("purge cache: %w", err))
			return
		}
	}

	files, err := o.lister.ListCandidateFiles(ctx, req.RootFolderID)
	if err != nil {
		o.fail(jobID, logger, fmt.Errorf("list files: %w", err))
		return
	}
	o.registry.Update(jobID, func(j *entity.ScanJob) { j.Total = len(files) })

	for _, file := range files {
		if ctx.Err() != nil {
			o.fail(jobID, logger, fmt.Errorf("scan canceled: %w", ctx.Err()))
			return
		}
		o.processFile(ctx, jobID, req.Scope, file, logger)
		o.registry.Update(jobID, func(j *entity.ScanJob) { j.Processed++ })
	}

	now := time.Now().UTC()
	o.registry.Update(jobID, func(j *entity.ScanJob) {
		j.Status = constants.ScanStatusDone
		j.FinishedAt = &now
	})
	final, _ := o.registry.Get(jobID)
	logger.Info("scan finished",
		"total", final.Total, "scanned", final.Scanned,
		"matched", final.Matched, "errors", len(final.Errors))
}

// processFile handles one file end to end. Every failure is absorbed into
// the job's error list.
func (o *Orchestrator) processFile(ctx context.Context, jobID uuid.UUID, scope entity.Scope, file entity.RemoteFile, logger *slog.Logger) {
	cached, err := o.cache.Exists(ctx, scope, file.ID)
	if err != nil {
		o.recordError(jobID, logger, file, fmt.Errorf("cache lookup: %w", err))
		return
	}
	if cached {
		logger.Debug("file already cached, skipping", "file", file.Name)
		return
	}

	dlCtx, cancel := context.WithTimeout(ctx, o.downloadTimeout)
	data, err := o.store.Download(dlCtx, file.ID)
	cancel()
	if err != nil {
		o.recordError(jobID, logger, file, fmt.Errorf("download: %w", err))
		return
	}

	inv := o.pipeline.Extract(ctx, extract.Input{FileID: file.ID, Name: file.Name, Data: data})

	rec := &entity.CachedInvoiceRecord{
		ID:            uuid.New(),
		UserID:        scope.UserID,
		CompanyID:     scope.CompanyID,
		FileID:        file.ID,
		FileName:      file.Name,
		Vendor:        inv.Vendor,
		Amount:        inv.Amount,
		Date:          inv.Date,
		InvoiceNumber: inv.InvoiceNumber,
		TaxAmount:     inv.TaxAmount,
		TaxRate:       inv.TaxRate,
		RawText:       inv.RawText,
		Method:        inv.Method,
		ScannedAt:     time.Now().UTC(),
	}

	decision, err := o.engine.Match(ctx, &inv, scope)
	if err != nil {
		// The extraction still gets cached; the invoice just stays
		// unmatched until someone links it by hand.
		logger.Warn("matching failed, caching unmatched", "file", file.Name, "error", err)
	} else if decision.TransactionID != nil {
		conf := decision.Score / 100
		if conf > 1 {
			conf = 1
		}
		rec.TransactionID = decision.TransactionID
		rec.Confidence = &conf
	}

	if err := audit.ValidateRecord(rec); err != nil {
		o.recordError(jobID, logger, file, fmt.Errorf("audit: %w", err))
		return
	}
	if err := o.cache.Insert(ctx, rec); err != nil {
		o.recordError(jobID, logger, file, fmt.Errorf("cache insert: %w", err))
		return
	}

	o.registry.Update(jobID, func(j *entity.ScanJob) {
		j.Scanned++
		if rec.TransactionID != nil {
			j.Matched++
		}
	})
}

func (o *Orchestrator) recordError(jobID uuid.UUID, logger *slog.Logger, file entity.RemoteFile, err error) {
	logger.Warn("file processing failed", "file", file.Name, "error", err)
	o.registry.Update(jobID, func(j *entity.ScanJob) {
		j.Errors = append(j.Errors, fmt.Sprintf("%s: %v", file.Name, err))
	})
}

func (o *Orchestrator) fail(jobID uuid.UUID, logger *slog.Logger, err error) {
	logger.Error("scan failed", "error", err)
	now := time.Now().UTC()
	o.registry.Update(jobID, func(j *entity.ScanJob) {
		j.Status = constants.ScanStatusError
		j.Errors = append(j.Errors, err.Error())
		j.FinishedAt = &now
	})
}
