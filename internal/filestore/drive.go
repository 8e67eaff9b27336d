package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/finledger/invoice-recon/internal/entity"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	docMimeType    = "application/vnd.google-apps.document"
)

// DriveClient implements Client against the Google Drive v3 API.
type DriveClient struct {
	srv         *drive.Service
	ocrLanguage string
	pageSize    int64
	logger      *slog.Logger
}

// NewDriveClient builds a Drive-backed store from an already-authenticated
// HTTP client (OAuth flows live with the caller).
func NewDriveClient(ctx context.Context, hc *http.Client, ocrLanguage string, logger *slog.Logger) (*DriveClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := drive.NewService(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if ocrLanguage == "" {
		ocrLanguage = "en"
	}
	return &DriveClient{srv: srv, ocrLanguage: ocrLanguage, pageSize: 100, logger: logger}, nil
}

func (c *DriveClient) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", parentID, folderMimeType)
	var out []Folder
	pageToken := ""
	for {
		call := c.srv.Files.List().Q(q).Fields("nextPageToken, files(id, name)").PageSize(c.pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list folders under %s: %w", parentID, err)
		}
		for _, f := range res.Files {
			out = append(out, Folder{ID: f.Id, Name: f.Name})
		}
		if res.NextPageToken == "" {
			return out, nil
		}
		pageToken = res.NextPageToken
	}
}

func (c *DriveClient) ListFiles(ctx context.Context, query, pageToken string) ([]entity.RemoteFile, string, error) {
	call := c.srv.Files.List().
		Q(query).
		OrderBy("modifiedTime desc").
		Fields("nextPageToken, files(id, name, modifiedTime)").
		PageSize(c.pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list files: %w", err)
	}
	files := make([]entity.RemoteFile, 0, len(res.Files))
	for _, f := range res.Files {
		mod, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			c.logger.Warn("unparsable modifiedTime", "file_id", f.Id, "value", f.ModifiedTime)
			mod = time.Time{}
		}
		files = append(files, entity.RemoteFile{ID: f.Id, Name: f.Name, ModifiedTime: mod})
	}
	return files, res.NextPageToken, nil
}

func (c *DriveClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	res, err := c.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.logger.Warn("close download body", "file_id", fileID, "error", cerr)
		}
	}()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	return data, nil
}

// CopyAsRecognizedDocument copies the file as a native document, which makes
// the store run its own text recognition over the content.
func (c *DriveClient) CopyAsRecognizedDocument(ctx context.Context, fileID string) (string, error) {
	copied, err := c.srv.Files.Copy(fileID, &drive.File{MimeType: docMimeType}).
		OcrLanguage(c.ocrLanguage).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("ocr copy of %s: %w", fileID, err)
	}
	return copied.Id, nil
}

func (c *DriveClient) ExportAsPlainText(ctx context.Context, tempID string) (string, error) {
	res, err := c.srv.Files.Export(tempID, "text/plain").Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("export %s: %w", tempID, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			c.logger.Warn("close export body", "temp_id", tempID, "error", cerr)
		}
	}()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read export of %s: %w", tempID, err)
	}
	return string(data), nil
}

func (c *DriveClient) Delete(ctx context.Context, tempID string) error {
	if err := c.srv.Files.Delete(tempID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete %s: %w", tempID, err)
	}
	return nil
}
