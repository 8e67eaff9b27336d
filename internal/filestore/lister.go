package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/finledger/invoice-recon/constants"
	"github.com/finledger/invoice-recon/internal/entity"
)

const (
	// DefaultMaxDepth bounds recursive folder expansion so cyclic or
	// pathological folder structures cannot run away.
	DefaultMaxDepth = 5

	// DefaultMaxFiles is the safety cap on one listing pass.
	DefaultMaxFiles = 1000
)

// Lister enumerates invoice-candidate files below a root folder. It keeps no
// state across calls; every call is a pure re-query.
type Lister struct {
	client   Client
	maxDepth int
	maxFiles int
	logger   *slog.Logger
}

func NewLister(client Client, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{
		client:   client,
		maxDepth: DefaultMaxDepth,
		maxFiles: DefaultMaxFiles,
		logger:   logger,
	}
}

// ListCandidateFiles expands folders below rootFolderID (bounded depth),
// then lists candidate files across all of them, newest first. Listing
// failures degrade to returning whatever was collected so far; partial
// results are preferable to none.
func (l *Lister) ListCandidateFiles(ctx context.Context, rootFolderID string) ([]entity.RemoteFile, error) {
	if rootFolderID == "" {
		return nil, fmt.Errorf("root folder id is empty")
	}

	folders := []string{rootFolderID}
	l.collectSubfolders(ctx, rootFolderID, 1, &folders)

	files := l.listFilesIn(ctx, folders)

	// The store orders each page by modified time, but pages across many
	// folders interleave; sort the merged set.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModifiedTime.After(files[j].ModifiedTime)
	})
	if len(files) > l.maxFiles {
		files = files[:l.maxFiles]
	}
	l.logger.Info("listed candidate files",
		"root_folder", rootFolderID, "folders", len(folders), "files", len(files))
	return files, nil
}

// collectSubfolders appends the ids of all folders below parentID, carrying
// an explicit depth parameter so the bound is enforced per level.
func (l *Lister) collectSubfolders(ctx context.Context, parentID string, depth int, acc *[]string) {
	if depth > l.maxDepth {
		l.logger.Warn("folder depth bound reached", "parent", parentID, "depth", depth)
		return
	}
	subs, err := l.client.ListFolders(ctx, parentID)
	if err != nil {
		l.logger.Warn("listing subfolders failed, keeping partial results",
			"parent", parentID, "depth", depth, "error", err)
		return
	}
	for _, sub := range subs {
		*acc = append(*acc, sub.ID)
		l.collectSubfolders(ctx, sub.ID, depth+1, acc)
	}
}

// listFilesIn pages through one store query covering every collected folder.
func (l *Lister) listFilesIn(ctx context.Context, folderIDs []string) []entity.RemoteFile {
	query := buildFileQuery(folderIDs)
	var files []entity.RemoteFile
	pageToken := ""
	for {
		page, next, err := l.client.ListFiles(ctx, query, pageToken)
		if err != nil {
			l.logger.Warn("file page listing failed, keeping partial results",
				"collected", len(files), "error", err)
			return files
		}
		for _, f := range page {
			if constants.IsCandidateFilename(f.Name) {
				files = append(files, f)
			}
		}
		if next == "" || len(files) >= l.maxFiles {
			return files
		}
		pageToken = next
	}
}

func buildFileQuery(folderIDs []string) string {
	parents := make([]string, len(folderIDs))
	for i, id := range folderIDs {
		parents[i] = fmt.Sprintf("'%s' in parents", id)
	}
	exts := make([]string, 0, len(constants.AllowedExtensions))
	for ext := range constants.AllowedExtensions {
		exts = append(exts, fmt.Sprintf("name contains '.%s'", ext))
	}
	sort.Strings(exts) // deterministic query text
	return fmt.Sprintf("(%s) and (%s) and mimeType != '%s' and trashed = false",
		strings.Join(parents, " or "), strings.Join(exts, " or "), folderMimeType)
}
