package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/export"
	"github.com/finledger/invoice-recon/internal/extract"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/match"
	"github.com/finledger/invoice-recon/internal/repository"
	"github.com/finledger/invoice-recon/internal/scan"
	"github.com/finledger/invoice-recon/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	// Credentials resolution (service account file or ambient identity) is
	// delegated to the Google auth defaults.
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
		logger.Error("failed to load score config", "error", err, "path", cfg.Scan.ScoreConfigPath)
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
	go registry.RunSweeper(ctx, cfg.Scan.SweepInterval)

	orch := scan.NewOrchestrator(lister, store, cacheRepo, engine, pipeline, registry,
		cfg.Scan.DownloadTimeout, logger)
	exporter := export.NewService(cacheRepo, logger)

	srv := server.New(ctx, orch, registry, cacheRepo, exporter, cfg.Drive.RootFolderID, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("invrecond listening", "addr", cfg.Server.Addr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
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
