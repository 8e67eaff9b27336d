package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/filestore"
	"github.com/finledger/invoice-recon/internal/parse"
)

// remoteOCRTier is the last resort: ask the store to produce a temporary
// converted copy with built-in recognition, export its text, and delete the
// copy. The delete runs on every exit path, including export failures.
type remoteOCRTier struct {
	store filestore.Client
}

func newRemoteOCRTier(store filestore.Client) *remoteOCRTier {
	return &remoteOCRTier{store: store}
}

func (t *remoteOCRTier) Method() constants.ExtractionMethod {
	return constants.MethodRemoteOCR
}

func (t *remoteOCRTier) Available() bool {
	return t.store != nil
}

func (t *remoteOCRTier) ExtractText(ctx context.Context, in Input, _ string) (string, error) {
	tempID, err := t.store.CopyAsRecognizedDocument(ctx, in.FileID)
	if err != nil {
		return "", fmt.Errorf("recognized copy: %w", err)
	}
	defer func() {
		if delErr := t.store.Delete(ctx, tempID); delErr != nil {
			slog.Warn("failed to delete temporary recognized copy",
				"temp_id", tempID, "file_id", in.FileID, "error", delErr)
		}
	}()

	text, err := t.store.ExportAsPlainText(ctx, tempID)
	if err != nil {
		return "", fmt.Errorf("export recognized text: %w", err)
	}
	return text, nil
}

func (t *remoteOCRTier) Accept(text string, _ parse.Fields) bool {
	return strings.TrimSpace(text) != ""
}
