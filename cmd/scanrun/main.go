// scanrun runs one scan from the command line and waits for it, for
// cron-style invocations and manual re-runs without the HTTP daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/extract"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/match"
	"github.com/finledger/invoice-recon/internal/repository"
	"github.com/finledger/invoice-recon/internal/scan"
)

func main() {
	userFlag := flag.String("user", "", "user id (UUID, required)")
	companyFlag := flag.String("company", "", "company id (UUID, optional)")
	folderFlag := flag.String("folder", "", "root folder id (defaults to DRIVE_ROOT_FOLDER_ID)")
	forceFlag := flag.Bool("force", false, "purge the scope's cache and rescan everything")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		logger.Error("-user must be a UUID", "value", *userFlag)
		os.Exit(2)
	}
	scope := entity.Scope{UserID: userID}
	if *companyFlag != "" {
		companyID, err := uuid.Parse(*companyFlag)
		if err != nil {
			logger.Error("-company must be a UUID", "value", *companyFlag)
			os.Exit(2)
		}
		scope.CompanyID = &companyID
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	folder := *folderFlag
	if folder == "" {
		folder = cfg.Drive.RootFolderID
	}

	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if cfg.Database.Driver == "sqlite" {
		if err := repository.EnsureSchema(ctx, db, logger); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
	}

	hc, err := google.DefaultClient(ctx, drive.DriveScope)
	if err != nil {
		logger.Error("failed to build drive credentials", "error", err)
		os.Exit(1)
	}
	store, err := filestore.NewDriveClient(ctx, hc, cfg.Drive.OCRLanguage, logger)
	if err != nil {
		logger.Error("failed to create drive client", "error", err)
		os.Exit(1)
	}

	scoreCfg, err := match.LoadScoreConfig(cfg.Scan.ScoreConfigPath)
	if err != nil {
		logger.Error("failed to load score config", "error", err)
		os.Exit(1)
	}

	cacheRepo := repository.NewInvoiceCacheRepository(db, logger)
	txRepo := repository.NewTransactionRepository(db, logger)
	lister := filestore.NewLister(store, logger)
	pipeline := extract.NewPipeline(extract.Config{
		Pdftotext:        cfg.OCR.Pdftotext,
		Pdftoppm:         cfg.OCR.Pdftoppm,
		Tesseract:        cfg.OCR.Tesseract,
		Languages:        cfg.OCR.Languages,
		DPI:              cfg.OCR.DPI,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}, store, logger)
	engine := match.NewEngine(scoreCfg, txRepo, splitLabels(cfg.Scan.ExcludeLabels), logger)
	registry := scan.NewRegistry(cfg.Scan.JobRetention, logger)
	orch := scan.NewOrchestrator(lister, store, cacheRepo, engine, pipeline, registry,
		cfg.Scan.DownloadTimeout, logger)

	jobID, done := orch.StartScan(ctx, scan.Request{
		Scope:        scope,
		RootFolderID: folder,
		ForceRescan:  *forceFlag,
	})
	<-done

	job, ok := registry.Get(jobID)
	if !ok {
		logger.Error("job vanished before completion", "job_id", jobID)
		os.Exit(1)
	}
	logger.Info("scan complete",
		"status", job.Status,
		"total", job.Total,
		"scanned", job.Scanned,
		"matched", job.Matched,
		"errors", len(job.Errors),
	)
	for _, msg := range job.Errors {
		logger.Warn("file error", "detail", msg)
	}
	if job.Status != constants.ScanStatusDone {
		os.Exit(1)
	}
}

func splitLabels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
