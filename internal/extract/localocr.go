package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/parse"
)

// localOCRTier rasterizes PDF pages with pdftoppm and recognizes them with
// tesseract. When either binary is missing the tier reports itself
// unavailable and the chain moves on; absence is a normal condition.
type localOCRTier struct {
	cfg    Config
	runner Runner
}

func newLocalOCRTier(cfg Config, runner Runner) *localOCRTier {
	return &localOCRTier{cfg: cfg, runner: runner}
}

func (t *localOCRTier) Method() constants.ExtractionMethod {
	return constants.MethodLocalOCR
}

func (t *localOCRTier) Available() bool {
	return t.runner.LookPath(t.cfg.Pdftoppm) && t.runner.LookPath(t.cfg.Tesseract)
}

func (t *localOCRTier) ExtractText(ctx context.Context, in Input, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("no local copy of %s", in.Name)
	}
	if constants.NormalizeExt(filepath.Ext(in.Name)) != "pdf" {
		// plain image: recognize directly
		return t.tesseract(ctx, localPath)
	}
	return t.pdfOCR(ctx, localPath)
}

func (t *localOCRTier) pdfOCR(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp(t.cfg.ArtifactCacheDir, "ocr-pages-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			slog.Warn("failed to remove temp dir", "path", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := t.runner.Run(ctx, t.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", t.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 256))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no images")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := t.tesseract(ctx, img)
		if err != nil {
			continue // one bad page must not sink the rest
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

func (t *localOCRTier) tesseract(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <langs>
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, path, "stdout", "-l", t.cfg.Languages)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 256))
	}
	return string(out), nil
}

// Accept requires enough characters to be more than line noise AND at least
// one anchorable signal recovered by the parser.
func (t *localOCRTier) Accept(text string, fields parse.Fields) bool {
	return len(text) > t.cfg.MinOCRChars && fields.HasAmountOrDate()
}
