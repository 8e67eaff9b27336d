package extract

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/parse"
)

// textLayerTier pulls the machine-readable text layer out of a PDF with
// pdftotext. Short extractions are typically scanned images misreported as
// having a text layer, so acceptance requires a minimum length.
type textLayerTier struct {
	cfg    Config
	runner Runner
}

func newTextLayerTier(cfg Config, runner Runner) *textLayerTier {
	return &textLayerTier{cfg: cfg, runner: runner}
}

func (t *textLayerTier) Method() constants.ExtractionMethod {
	return constants.MethodTextLayer
}

func (t *textLayerTier) Available() bool {
	return t.runner.LookPath(t.cfg.Pdftotext)
}

func (t *textLayerTier) ExtractText(ctx context.Context, in Input, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("no local copy of %s", in.Name)
	}
	if constants.NormalizeExt(filepath.Ext(in.Name)) != "pdf" {
		return "", nil // images carry no text layer; fall through
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := t.runner.Run(ctx, t.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", localPath, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w (%s)", err, truncate(string(errb), 256))
	}
	return string(out), nil
}

func (t *textLayerTier) Accept(text string, _ parse.Fields) bool {
	return len(text) > t.cfg.MinTextLayerChars
}
