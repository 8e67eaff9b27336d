package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/parse"
	"github.com/finledger/invoice-recon/internal/repository"
)

// Engine scores an extracted invoice against the scope's transaction
// candidates and decides whether the best one is safe to auto-link.
type Engine struct {
	cfg           ScoreConfig
	txs           repository.TransactionRepository
	excludeLabels []string
	logger        *slog.Logger
}

func NewEngine(cfg ScoreConfig, txs repository.TransactionRepository, excludeLabels []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, txs: txs, excludeLabels: excludeLabels, logger: logger}
}

// Match finds the best-scoring candidate within the date window. The
// returned decision carries a transaction id only when the score strictly
// exceeds the acceptance threshold; below it, the invoice stays unmatched.
func (e *Engine) Match(ctx context.Context, inv *entity.ExtractedInvoice, scope entity.Scope) (entity.MatchDecision, error) {
	anchor := time.Now().UTC().Truncate(24 * time.Hour)
	if inv.Date != nil {
		anchor = *inv.Date
	}
	window := time.Duration(e.cfg.WindowDays) * 24 * time.Hour
	from, to := anchor.Add(-window), anchor.Add(window)

	candidates, err := e.txs.QueryCandidates(ctx, scope, from, to, true, e.excludeLabels)
	if err != nil {
		return entity.MatchDecision{}, fmt.Errorf("query candidates: %w", err)
	}

	var best entity.MatchDecision
	for _, cand := range candidates {
		score := e.scoreAmount(inv, cand) + e.scoreDate(inv, cand) + e.scoreVendor(inv, cand)
		if score > best.Score {
			id := cand.ID
			best = entity.MatchDecision{TransactionID: &id, Score: score}
		}
	}

	if best.TransactionID != nil && best.Score <= e.cfg.AcceptThreshold {
		e.logger.Debug("best candidate below acceptance threshold",
			"score", best.Score, "threshold", e.cfg.AcceptThreshold, "tx_id", *best.TransactionID)
		best.TransactionID = nil
	}
	return best, nil
}

// scoreAmount compares the invoice amount to the candidate's absolute
// amount and, separately, to any amount embedded in the label in foreign
// currency notation; the closer of the two differences wins.
func (e *Engine) scoreAmount(inv *entity.ExtractedInvoice, cand entity.TransactionCandidate) float64 {
	if inv.Amount == nil {
		return 0
	}
	diff := inv.Amount.Sub(cand.Amount.Abs()).Abs()
	if embedded := parse.EmbeddedAmount(cand.Label); embedded != nil {
		if d := inv.Amount.Sub(embedded.Abs()).Abs(); d.LessThan(diff) {
			diff = d
		}
	}

	switch {
	case diff.LessThan(decimal.NewFromFloat(e.cfg.AmountExactDiff)):
		return e.cfg.AmountExactPts
	case diff.LessThan(decimal.NewFromFloat(e.cfg.AmountCloseDiff)):
		return e.cfg.AmountClosePts
	case diff.LessThan(decimal.NewFromFloat(e.cfg.AmountNearDiff)):
		return e.cfg.AmountNearPts
	}
	relative := diff.Div(*inv.Amount).Mul(decimal.NewFromInt(100))
	if relative.LessThan(decimal.NewFromFloat(e.cfg.AmountRelativePct)) {
		return e.cfg.AmountRelativePts
	}
	return 0
}

// scoreDate awards by absolute day difference. Being inside the window at
// all earns a small baseline credit.
func (e *Engine) scoreDate(inv *entity.ExtractedInvoice, cand entity.TransactionCandidate) float64 {
	if inv.Date == nil {
		return 0
	}
	days := dayDiff(*inv.Date, cand.Date)
	switch {
	case days <= e.cfg.DateSameDays:
		return e.cfg.DateSamePts
	case days <= e.cfg.DateCloseDays:
		return e.cfg.DateClosePts
	case days <= e.cfg.DateWeekDays:
		return e.cfg.DateWeekPts
	case days <= e.cfg.DateFortnightDays:
		return e.cfg.DateFortnightPts
	}
	return e.cfg.DateWindowPts
}

// scoreVendor checks case-insensitive containment either direction, then
// falls back to matching any vendor token longer than three characters.
func (e *Engine) scoreVendor(inv *entity.ExtractedInvoice, cand entity.TransactionCandidate) float64 {
	if inv.Vendor == nil {
		return 0
	}
	vendor := parse.Fold(strings.TrimSpace(*inv.Vendor))
	label := parse.Fold(cand.Label)
	if vendor == "" || label == "" {
		return 0
	}
	if strings.Contains(label, vendor) || strings.Contains(vendor, label) {
		return e.cfg.VendorContainPts
	}
	for _, tok := range strings.Fields(vendor) {
		if len(tok) > 3 && strings.Contains(label, tok) {
			return e.cfg.VendorTokenPts
		}
	}
	return 0
}

func dayDiff(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
