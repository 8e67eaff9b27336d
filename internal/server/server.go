// Package server exposes the JSON API: scan control, invoice listing,
// manual match overrides and the XLSX export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/invoice-recon/internal/common"
	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/export"
	"github.com/finledger/invoice-recon/internal/repository"
	"github.com/finledger/invoice-recon/internal/scan"
)

// ScanStarter launches scans; satisfied by the orchestrator.
type ScanStarter interface {
	StartScan(ctx context.Context, req scan.Request) (uuid.UUID, <-chan struct{})
}

// Server wires the HTTP handlers to the domain collaborators. Scans are
// detached from request contexts: baseCtx bounds their lifetime instead, so
// a poller hanging up never cancels a running job.
type Server struct {
	baseCtx       context.Context
	starter       ScanStarter
	registry      *scan.Registry
	cache         repository.InvoiceCacheRepository
	exporter      *export.Service
	defaultFolder string
	logger        *slog.Logger
}

func New(
	baseCtx context.Context,
	starter ScanStarter,
	registry *scan.Registry,
	cache repository.InvoiceCacheRepository,
	exporter *export.Service,
	defaultFolder string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		baseCtx:       baseCtx,
		starter:       starter,
		registry:      registry,
		cache:         cache,
		exporter:      exporter,
		defaultFolder: defaultFolder,
		logger:        logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/scans", s.handleStartScan)
	mux.HandleFunc("GET /v1/scans/{id}", s.handleGetScan)
	mux.HandleFunc("GET /v1/invoices", s.handleListInvoices)
	mux.HandleFunc("GET /v1/invoices/export", s.handleExportInvoices)
	mux.HandleFunc("POST /v1/invoices/{id}/match", s.handleMatchInvoice)
	mux.HandleFunc("POST /v1/invoices/{id}/unmatch", s.handleUnmatchInvoice)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startScanRequest struct {
	UserID       string `json:"user_id"`
	CompanyID    string `json:"company_id,omitempty"`
	RootFolderID string `json:"root_folder_id,omitempty"`
	ForceRescan  bool   `json:"force_rescan,omitempty"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	scope, errMsg := parseScope(body.UserID, body.CompanyID)
	if errMsg != "" {
		s.writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	folder := body.RootFolderID
	if folder == "" {
		folder = s.defaultFolder
	}
	if folder == "" {
		s.writeError(w, http.StatusBadRequest, "root_folder_id is required")
		return
	}

	jobID, _ := s.starter.StartScan(s.baseCtx, scan.Request{
		Scope:        scope,
		RootFolderID: folder,
		ForceRescan:  body.ForceRescan,
	})
	s.logger.Info("scan accepted", "job_id", jobID, "scope", scope.String())
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID.String()})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	scope, errMsg := parseScope(r.URL.Query().Get("user_id"), r.URL.Query().Get("company_id"))
	if errMsg != "" {
		s.writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	recs, err := s.cache.ListByScope(r.Context(), scope)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []*entity.CachedInvoiceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": recs})
}

func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	scope, errMsg := parseScope(r.URL.Query().Get("user_id"), r.URL.Query().Get("company_id"))
	if errMsg != "" {
		s.writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	data, err := s.exporter.ExportInvoicesXLSX(r.Context(), scope)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		`attachment; filename="invoices-`+time.Now().UTC().Format("2006-01-02")+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type matchRequest struct {
	TransactionID int64    `json:"transaction_id"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

func (s *Server) handleMatchInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	var body matchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.TransactionID == 0 {
		s.writeError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}
	// A hand-made link is authoritative.
	confidence := 1.0
	if body.Confidence != nil {
		confidence = *body.Confidence
	}
	if confidence < 0 || confidence > 1 {
		s.writeError(w, http.StatusBadRequest, "confidence must be within [0, 1]")
		return
	}
	if err := s.cache.SetMatch(r.Context(), id, body.TransactionID, confidence); err != nil {
		s.handleDomainError(w, err)
		return
	}
	rec, err := s.cache.GetByID(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUnmatchInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	if err := s.cache.ClearMatch(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	rec, err := s.cache.GetByID(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseScope(userID, companyID string) (entity.Scope, string) {
	if userID == "" {
		return entity.Scope{}, "user_id is required"
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return entity.Scope{}, "user_id must be a UUID"
	}
	scope := entity.Scope{UserID: uid}
	if companyID != "" {
		cid, err := uuid.Parse(companyID)
		if err != nil {
			return entity.Scope{}, "company_id must be a UUID"
		}
		scope.CompanyID = &cid
	}
	return scope, ""
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
