package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/parse"
)

// Input is one file handed to the pipeline: the remote id (for store-side
// OCR), the display name (for filename heuristics) and the raw bytes.
type Input struct {
	FileID string
	Name   string
	Data   []byte
}

// Tier is one extraction technique in the fallback chain. A tier that
// cannot run on this host reports Available() == false and is skipped, not
// treated as an error.
type Tier interface {
	Method() constants.ExtractionMethod
	Available() bool
	// ExtractText produces raw text for the parser. An error means this
	// tier could not produce text; the pipeline degrades to the next one.
	ExtractText(ctx context.Context, in Input, localPath string) (string, error)
	// Accept reports whether the tier's output is good enough to stop the
	// fallback chain.
	Accept(text string, fields parse.Fields) bool
}

// Config tunes the pipeline and its tiers.
type Config struct {
	Pdftotext         string
	Pdftoppm          string
	Tesseract         string
	Languages         string // tesseract language spec, e.g. "eng+fra"
	DPI               int
	ArtifactCacheDir  string
	MinTextLayerChars int
	MinOCRChars       int
	RawTextLimit      int
}

func (c *Config) applyDefaults() {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Languages == "" {
		c.Languages = "eng+fra"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.ArtifactCacheDir == "" {
		c.ArtifactCacheDir = "./tmp"
	}
	if c.MinTextLayerChars <= 0 {
		c.MinTextLayerChars = 200
	}
	if c.MinOCRChars <= 0 {
		c.MinOCRChars = 20
	}
	if c.RawTextLimit <= 0 {
		c.RawTextLimit = 2000
	}
}

// Pipeline folds over the ordered tier list with an early-exit predicate.
// Extract never fails; it degrades method by method down to the filename
// heuristics.
type Pipeline struct {
	cfg    Config
	tiers  []Tier
	logger *slog.Logger
}

// NewPipeline wires the standard tier order: text layer, local OCR, remote
// OCR. Filename heuristics always run first and are not a Tier; they seed
// the defaults every other tier merges over.
func NewPipeline(cfg Config, store filestore.Client, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	runner := execRunner{}
	return &Pipeline{
		cfg: cfg,
		tiers: []Tier{
			newTextLayerTier(cfg, runner),
			newLocalOCRTier(cfg, runner),
			newRemoteOCRTier(store),
		},
		logger: logger,
	}
}

// NewPipelineWithTiers is the seam used by tests and by callers that need a
// custom chain.
func NewPipelineWithTiers(cfg Config, tiers []Tier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Pipeline{cfg: cfg, tiers: tiers, logger: logger}
}

// Extract runs the fallback chain over one file and always returns a
// result. The accepted tier's fields are merged over filename-derived
// defaults; Method records which tier supplied the accepted fields.
func (p *Pipeline) Extract(ctx context.Context, in Input) entity.ExtractedInvoice {
	seed := FilenameFields(in.Name)

	localPath, cleanup, err := p.materialize(in)
	if err != nil {
		p.logger.Warn("could not materialize file locally, exec tiers degraded",
			"file", in.Name, "error", err)
		localPath = ""
	}
	defer cleanup()

	for _, tier := range p.tiers {
		if !tier.Available() {
			p.logger.Debug("extraction tier unavailable, skipping",
				"tier", tier.Method(), "file", in.Name)
			continue
		}
		// The store-side OCR round-trip is a last resort: only worth the
		// copy/export/delete cycle when nothing so far yielded an amount
		// or a date to match on.
		if tier.Method() == constants.MethodRemoteOCR && seed.HasAmountOrDate() {
			break
		}
		text, err := tier.ExtractText(ctx, in, localPath)
		if err != nil {
			p.logger.Warn("extraction tier failed, degrading",
				"tier", tier.Method(), "file", in.Name, "error", err)
			continue
		}
		fields := parse.Parse(text)
		if !tier.Accept(text, fields) {
			p.logger.Debug("extraction tier output insufficient",
				"tier", tier.Method(), "file", in.Name, "chars", len(text))
			continue
		}
		return p.finish(in, mergeFields(seed, fields), tier.Method(), text)
	}

	return p.finish(in, seed, constants.MethodFilename, "")
}

func (p *Pipeline) finish(in Input, f parse.Fields, method constants.ExtractionMethod, text string) entity.ExtractedInvoice {
	inv := entity.ExtractedInvoice{
		Vendor:        f.Vendor,
		Amount:        f.Amount,
		Date:          f.Date,
		InvoiceNumber: f.InvoiceNumber,
		TaxAmount:     f.TaxAmount,
		TaxRate:       f.TaxRate,
		RawText:       truncate(text, p.cfg.RawTextLimit),
		Method:        method,
	}
	p.logger.Info("extraction finished",
		"file", in.Name,
		"method", method,
		"has_amount", inv.Amount != nil,
		"has_date", inv.Date != nil,
		"has_vendor", inv.Vendor != nil,
	)
	return inv
}

// materialize writes the input bytes to a scoped temp file for the exec
// tiers. The returned cleanup runs on every exit path of Extract.
func (p *Pipeline) materialize(in Input) (string, func(), error) {
	if err := os.MkdirAll(p.cfg.ArtifactCacheDir, 0o755); err != nil {
		return "", func() {}, err
	}
	f, err := os.CreateTemp(p.cfg.ArtifactCacheDir, "scan-*"+filepath.Ext(in.Name))
	if err != nil {
		return "", func() {}, err
	}
	path := f.Name()
	cleanup := func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			p.logger.Warn("failed to remove temp file", "path", path, "error", rmErr)
		}
	}
	if _, err := f.Write(in.Data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// mergeFields keeps the accepted tier's values and fills the gaps with the
// filename-derived defaults.
func mergeFields(seed, tier parse.Fields) parse.Fields {
	out := tier
	if out.Vendor == nil {
		out.Vendor = seed.Vendor
	}
	if out.Amount == nil {
		out.Amount = seed.Amount
	}
	if out.Date == nil {
		out.Date = seed.Date
	}
	if out.InvoiceNumber == nil {
		out.InvoiceNumber = seed.InvoiceNumber
	}
	if out.TaxAmount == nil {
		out.TaxAmount = seed.TaxAmount
	}
	if out.TaxRate == nil {
		out.TaxRate = seed.TaxRate
	}
	return out
}
