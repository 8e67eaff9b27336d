// Package filestore talks to the remote document store. The Client
// interface is the full collaborator contract consumed by the lister, the
// extraction pipeline and the orchestrator; auth and token refresh are the
// caller's responsibility.
package filestore

import (
	"context"

	"github.com/finledger/invoice-recon/internal/entity"
)

// Folder is a remote folder reference.
type Folder struct {
	ID   string
	Name string
}

// Client is the remote-file-store collaborator.
type Client interface {
	// ListFolders returns the direct subfolders of parentID.
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)

	// ListFiles returns one page of files matching the store query plus the
	// continuation token for the next page ("" when exhausted).
	ListFiles(ctx context.Context, query, pageToken string) ([]entity.RemoteFile, string, error)

	// Download fetches the raw bytes of one file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// CopyAsRecognizedDocument asks the store to produce a temporary copy
	// with built-in document recognition applied, returning its id.
	CopyAsRecognizedDocument(ctx context.Context, fileID string) (string, error)

	// ExportAsPlainText exports the recognized text of a temporary copy.
	ExportAsPlainText(ctx context.Context, tempID string) (string, error)

	// Delete removes a temporary copy.
	Delete(ctx context.Context, tempID string) error
}
