package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/entity"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/parse"
)

type fakeTier struct {
	method    constants.ExtractionMethod
	available bool
	text      string
	err       error
	minChars  int
	needField bool
	calls     int
}

func (f *fakeTier) Method() constants.ExtractionMethod { return f.method }
func (f *fakeTier) Available() bool                    { return f.available }

func (f *fakeTier) ExtractText(context.Context, Input, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeTier) Accept(text string, fields parse.Fields) bool {
	if len(text) <= f.minChars {
		return false
	}
	if f.needField && !fields.HasAmountOrDate() {
		return false
	}
	return true
}

// richText is a believable embedded text layer, comfortably over the
// 200-char sufficiency threshold.
var richText = strings.Repeat("Lorem ipsum dolor sit amet. ", 8) +
	"\nAcme Fournitures\nTotal TTC: 123,45 €\nle 12 mars 2026\n"

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{ArtifactCacheDir: t.TempDir()}
}

func TestExtractStopsAtFirstSufficientTier(t *testing.T) {
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: richText, minChars: 200}
	localOCR := &fakeTier{method: constants.MethodLocalOCR, available: true, text: richText, minChars: 20}
	remoteOCR := &fakeTier{method: constants.MethodRemoteOCR, available: true, text: richText}

	p := NewPipelineWithTiers(testConfig(t), []Tier{textLayer, localOCR, remoteOCR}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "scan_weird_name.pdf", Data: []byte("%PDF")})

	if inv.Method != constants.MethodTextLayer {
		t.Fatalf("method = %s, want text-layer", inv.Method)
	}
	if localOCR.calls != 0 || remoteOCR.calls != 0 {
		t.Fatalf("OCR tiers invoked (%d, %d) despite sufficient text layer", localOCR.calls, remoteOCR.calls)
	}
	if inv.Amount == nil || inv.Date == nil || inv.Vendor == nil {
		t.Fatalf("fields not parsed from accepted text: %+v", inv)
	}
}

func TestExtractFallsThroughTiersInOrder(t *testing.T) {
	// No text layer, local OCR produces garbage, remote OCR succeeds.
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: "", minChars: 200}
	localOCR := &fakeTier{method: constants.MethodLocalOCR, available: true, text: "zz", minChars: 20, needField: true}
	remoteOCR := &fakeTier{method: constants.MethodRemoteOCR, available: true, text: richText}

	p := NewPipelineWithTiers(testConfig(t), []Tier{textLayer, localOCR, remoteOCR}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "scan_weird_name.pdf", Data: []byte("%PDF")})

	if inv.Method != constants.MethodRemoteOCR {
		t.Fatalf("method = %s, want remote-ocr", inv.Method)
	}
	if textLayer.calls != 1 || localOCR.calls != 1 || remoteOCR.calls != 1 {
		t.Fatalf("tier calls = %d/%d/%d, want 1/1/1", textLayer.calls, localOCR.calls, remoteOCR.calls)
	}
}

func TestExtractSkipsUnavailableTier(t *testing.T) {
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: "", minChars: 200}
	localOCR := &fakeTier{method: constants.MethodLocalOCR, available: false}
	remoteOCR := &fakeTier{method: constants.MethodRemoteOCR, available: true, text: richText}

	p := NewPipelineWithTiers(testConfig(t), []Tier{textLayer, localOCR, remoteOCR}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "doc.pdf", Data: nil})

	if localOCR.calls != 0 {
		t.Fatal("unavailable tier was invoked")
	}
	if inv.Method != constants.MethodRemoteOCR {
		t.Fatalf("method = %s, want remote-ocr", inv.Method)
	}
}

func TestExtractRemoteOCRSkippedWhenFilenameAnchors(t *testing.T) {
	// The filename already yields a date, so the expensive remote
	// round-trip must not happen.
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: "", minChars: 200}
	remoteOCR := &fakeTier{method: constants.MethodRemoteOCR, available: true, text: richText}

	p := NewPipelineWithTiers(testConfig(t), []Tier{textLayer, remoteOCR}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "acme_2026-03-12.pdf", Data: nil})

	if remoteOCR.calls != 0 {
		t.Fatal("remote OCR invoked despite filename-derived date")
	}
	if inv.Method != constants.MethodFilename {
		t.Fatalf("method = %s, want filename", inv.Method)
	}
	want := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	if inv.Date == nil || !inv.Date.Equal(want) {
		t.Fatalf("date = %v, want %v", inv.Date, want)
	}
	if inv.Vendor == nil || *inv.Vendor != "acme" {
		t.Fatalf("vendor = %v, want acme", inv.Vendor)
	}
}

func TestExtractMergesFilenameDefaults(t *testing.T) {
	// The accepted tier recovers an amount but no vendor; the
	// filename-derived vendor must survive the merge.
	body := strings.Repeat("x", 190) + " Total: 42.00 "
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: body, minChars: 200}

	p := NewPipelineWithTiers(testConfig(t), []Tier{textLayer}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "bouygues_telecom_99.pdf", Data: nil})

	if inv.Method != constants.MethodTextLayer {
		t.Fatalf("method = %s, want text-layer", inv.Method)
	}
	if inv.Amount == nil || inv.Amount.String() != "42" {
		t.Fatalf("amount = %v, want 42", inv.Amount)
	}
	if inv.Vendor == nil || *inv.Vendor != "bouygues telecom" {
		t.Fatalf("vendor = %v, want filename-derived bouygues telecom", inv.Vendor)
	}
}

func TestExtractRawTextBounded(t *testing.T) {
	huge := strings.Repeat("Total: 42.00 pad pad pad. ", 500)
	textLayer := &fakeTier{method: constants.MethodTextLayer, available: true, text: huge, minChars: 200}

	cfg := testConfig(t)
	p := NewPipelineWithTiers(cfg, []Tier{textLayer}, nil)
	inv := p.Extract(context.Background(), Input{FileID: "f1", Name: "doc_one.pdf", Data: nil})

	if len(inv.RawText) > 2000+len("...(truncated)") {
		t.Fatalf("raw text length = %d, want bounded prefix", len(inv.RawText))
	}
}

// recordingStore exercises the real remote tier's cleanup guarantee.
type recordingStore struct {
	exportErr error
	copied    int
	deleted   []string
}

func (r *recordingStore) ListFolders(context.Context, string) ([]filestore.Folder, error) {
	return nil, nil
}
func (r *recordingStore) ListFiles(context.Context, string, string) ([]entity.RemoteFile, string, error) {
	return nil, "", nil
}
func (r *recordingStore) Download(context.Context, string) ([]byte, error) { return nil, nil }

func (r *recordingStore) CopyAsRecognizedDocument(_ context.Context, fileID string) (string, error) {
	r.copied++
	return "tmp-" + fileID, nil
}

func (r *recordingStore) ExportAsPlainText(context.Context, string) (string, error) {
	if r.exportErr != nil {
		return "", r.exportErr
	}
	return richText, nil
}

func (r *recordingStore) Delete(_ context.Context, tempID string) error {
	r.deleted = append(r.deleted, tempID)
	return nil
}

func TestRemoteOCRTierDeletesTempCopy(t *testing.T) {
	store := &recordingStore{}
	tier := newRemoteOCRTier(store)

	text, err := tier.ExtractText(context.Background(), Input{FileID: "f9", Name: "f9.pdf"}, "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != richText {
		t.Fatal("unexpected exported text")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "tmp-f9" {
		t.Fatalf("deleted = %v, want the temp copy", store.deleted)
	}
}

func TestRemoteOCRTierDeletesTempCopyOnExportFailure(t *testing.T) {
	store := &recordingStore{exportErr: errors.New("export quota exceeded")}
	tier := newRemoteOCRTier(store)

	_, err := tier.ExtractText(context.Background(), Input{FileID: "f9", Name: "f9.pdf"}, "")
	if err == nil {
		t.Fatal("want error from failed export")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "tmp-f9" {
		t.Fatalf("deleted = %v, want cleanup despite export failure", store.deleted)
	}
}
