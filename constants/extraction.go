package constants

import "strings"

// ExtractionMethod identifies the tier that ultimately supplied the
// accepted fields for one file.
type ExtractionMethod string

// Stable values (stored in the cache table).
const (
	MethodFilename  ExtractionMethod = "filename"
	MethodTextLayer ExtractionMethod = "text-layer"
	MethodLocalOCR  ExtractionMethod = "local-ocr"
	MethodRemoteOCR ExtractionMethod = "remote-ocr"
)

// AllowedExtensions holds the file extensions considered invoice candidates.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsCandidateFilename reports whether a remote file name looks like a
// scannable invoice document.
func IsCandidateFilename(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	_, ok := AllowedExtensions[NormalizeExt(name[i:])]
	return ok
}
