package match

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finledger/invoice-recon/internal/entity"
)

type fakeTxRepo struct {
	cands []entity.TransactionCandidate
	err   error

	gotFrom, gotTo   time.Time
	gotExcludeLinked bool
	gotLabels        []string
}

func (f *fakeTxRepo) QueryCandidates(_ context.Context, _ entity.Scope, from, to time.Time, excludeLinked bool, excludeLabels []string) ([]entity.TransactionCandidate, error) {
	f.gotFrom, f.gotTo = from, to
	f.gotExcludeLinked = excludeLinked
	f.gotLabels = excludeLabels
	return f.cands, f.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testScope() entity.Scope {
	return entity.Scope{UserID: uuid.New()}
}

func strPtr(s string) *string { return &s }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func timePtr(t time.Time) *time.Time { return &t }

func TestMatchStrongCandidateAccepted(t *testing.T) {
	repo := &fakeTxRepo{cands: []entity.TransactionCandidate{
		{ID: 7, Label: "PRLV SEPA ACME FOURNITURES", Amount: amt("-123.45"), Date: day(2026, time.March, 13)},
		{ID: 8, Label: "CB SUPERMARCHE", Amount: amt("-52.10"), Date: day(2026, time.March, 12)},
	}}
	eng := NewEngine(DefaultScoreConfig(), repo, nil, nil)

	inv := &entity.ExtractedInvoice{
		Vendor: strPtr("Acme Fournitures"),
		Amount: decPtr(amt("123.45")),
		Date:   timePtr(day(2026, time.March, 12)),
	}
	dec, err := eng.Match(context.Background(), inv, testScope())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if dec.TransactionID == nil || *dec.TransactionID != 7 {
		t.Fatalf("transaction = %v, want 7", dec.TransactionID)
	}
	// Exact amount, one-day gap, vendor contained in the label.
	if dec.Score != 50+35+30 {
		t.Fatalf("score = %v, want 115", dec.Score)
	}
}

func TestMatchScoreExactlyAtThresholdRejected(t *testing.T) {
	// Close amount (40) plus a vendor token (20) lands exactly on 60,
	// which must not be enough: the threshold is strict.
	repo := &fakeTxRepo{cands: []entity.TransactionCandidate{
		{ID: 3, Label: "PAYMENT ACME SERVICES", Amount: amt("-100.30"), Date: day(2026, time.June, 1)},
	}}
	eng := NewEngine(DefaultScoreConfig(), repo, nil, nil)

	inv := &entity.ExtractedInvoice{
		Vendor: strPtr("Acme Corp"),
		Amount: decPtr(amt("100.00")),
	}
	dec, err := eng.Match(context.Background(), inv, testScope())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if dec.Score != 60 {
		t.Fatalf("score = %v, want exactly 60", dec.Score)
	}
	if dec.TransactionID != nil {
		t.Fatalf("transaction = %v, want none at the threshold", *dec.TransactionID)
	}
}

func TestMatchAmountTiers(t *testing.T) {
	tests := []struct {
		name string
		cand string
		want float64
	}{
		{"identical", "-100.00", 50},
		{"two cents off is not exact", "-100.02", 40},
		{"within half a unit", "-100.49", 40},
		{"exactly half a unit off", "-100.50", 25},
		{"within two units", "-101.99", 25},
		{"two units off falls to relative", "-102.00", 20},
		{"just under five percent", "-104.99", 20},
		{"five percent is too far", "-105.00", 0},
	}
	eng := NewEngine(DefaultScoreConfig(), nil, nil, nil)
	inv := &entity.ExtractedInvoice{Amount: decPtr(amt("100.00"))}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := entity.TransactionCandidate{Label: "VIREMENT", Amount: amt(tt.cand), Date: day(2026, time.May, 5)}
			if got := eng.scoreAmount(inv, cand); got != tt.want {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAmountEmbeddedInLabelWins(t *testing.T) {
	// A card payment settled in another currency: the booked amount is
	// off, but the label carries the original 123.45 EUR.
	eng := NewEngine(DefaultScoreConfig(), nil, nil, nil)
	inv := &entity.ExtractedInvoice{Amount: decPtr(amt("123.45"))}
	cand := entity.TransactionCandidate{
		Label:  "CB ACME 123.45 EUR TAUX 1.08",
		Amount: amt("-133.33"),
		Date:   day(2026, time.May, 5),
	}
	if got := eng.scoreAmount(inv, cand); got != 50 {
		t.Fatalf("score = %v, want 50 via label amount", got)
	}
}

func TestMatchDateTiers(t *testing.T) {
	tests := []struct {
		name string
		cand time.Time
		want float64
	}{
		{"same day", day(2026, time.March, 10), 35},
		{"next day", day(2026, time.March, 11), 35},
		{"two days", day(2026, time.March, 8), 25},
		{"three days", day(2026, time.March, 13), 25},
		{"four days", day(2026, time.March, 14), 15},
		{"one week", day(2026, time.March, 17), 15},
		{"eight days", day(2026, time.March, 18), 8},
		{"two weeks", day(2026, time.March, 24), 8},
		{"beyond a fortnight", day(2026, time.March, 27), 3},
	}
	eng := NewEngine(DefaultScoreConfig(), nil, nil, nil)
	inv := &entity.ExtractedInvoice{Date: timePtr(day(2026, time.March, 10))}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := entity.TransactionCandidate{Label: "VIREMENT", Amount: amt("-1.00"), Date: tt.cand}
			if got := eng.scoreDate(inv, cand); got != tt.want {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchVendorScoring(t *testing.T) {
	tests := []struct {
		name   string
		vendor string
		label  string
		want   float64
	}{
		{"vendor inside label", "Bouygues Telecom", "PRLV BOUYGUES TELECOM SA", 30},
		{"label inside vendor", "EDF Energie Services France", "edf energie", 30},
		{"accents folded before comparing", "Télécom Réunion", "PRLV TELECOM REUNION", 30},
		{"shared long token only", "Orange Business", "FACTURE ORANGE 03/26", 20},
		{"short tokens ignored", "SNC Le Pré", "LE PRE PAIEMENT", 0},
		{"no overlap", "Acme Corp", "CARREFOUR MARKET", 0},
	}
	eng := NewEngine(DefaultScoreConfig(), nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &entity.ExtractedInvoice{Vendor: strPtr(tt.vendor)}
			cand := entity.TransactionCandidate{Label: tt.label}
			if got := eng.scoreVendor(inv, cand); got != tt.want {
				t.Fatalf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchWindowAndFiltersForwarded(t *testing.T) {
	repo := &fakeTxRepo{}
	eng := NewEngine(DefaultScoreConfig(), repo, []string{"SALAIRE", "LOYER"}, nil)

	anchor := day(2026, time.April, 15)
	inv := &entity.ExtractedInvoice{Date: timePtr(anchor)}
	if _, err := eng.Match(context.Background(), inv, testScope()); err != nil {
		t.Fatalf("match: %v", err)
	}
	if want := anchor.AddDate(0, 0, -30); !repo.gotFrom.Equal(want) {
		t.Fatalf("from = %v, want %v", repo.gotFrom, want)
	}
	if want := anchor.AddDate(0, 0, 30); !repo.gotTo.Equal(want) {
		t.Fatalf("to = %v, want %v", repo.gotTo, want)
	}
	if !repo.gotExcludeLinked {
		t.Fatal("already linked transactions must be excluded")
	}
	if len(repo.gotLabels) != 2 || repo.gotLabels[0] != "SALAIRE" {
		t.Fatalf("exclude labels = %v", repo.gotLabels)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	eng := NewEngine(DefaultScoreConfig(), &fakeTxRepo{}, nil, nil)
	inv := &entity.ExtractedInvoice{Amount: decPtr(amt("10.00"))}
	dec, err := eng.Match(context.Background(), inv, testScope())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if dec.TransactionID != nil || dec.Score != 0 {
		t.Fatalf("decision = %+v, want empty", dec)
	}
}

func TestMatchRepositoryError(t *testing.T) {
	eng := NewEngine(DefaultScoreConfig(), &fakeTxRepo{err: errors.New("connection reset")}, nil, nil)
	if _, err := eng.Match(context.Background(), &entity.ExtractedInvoice{}, testScope()); err == nil {
		t.Fatal("want error from candidate query")
	}
}

func TestLoadScoreConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/scores.yaml"
	if err := os.WriteFile(path, []byte("accept_threshold: 80\nwindow_days: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadScoreConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AcceptThreshold != 80 || cfg.WindowDays != 10 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.AmountExactPts != 50 {
		t.Fatalf("default lost: %v", cfg.AmountExactPts)
	}
}

func TestLoadScoreConfigEmptyPath(t *testing.T) {
	cfg, err := LoadScoreConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultScoreConfig() {
		t.Fatal("empty path must return defaults")
	}
}
