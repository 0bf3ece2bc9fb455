package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Common MIME allow-lists.
var (
	ImageTypes    = []string{"image/jpeg", "image/png", "image/webp"}
	DocumentTypes = []string{"application/pdf"}
)

// Size ceilings.
const (
	MB           int64 = 1 << 20
	PhotoMaxSize       = 5 * MB
	DocMaxSize         = 10 * MB
)

// FileValue is an uploaded file held in memory for the duration of one
// request. ContentType is the sniffed type when Content is available.
type FileValue struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte
}

// NewFileValue builds a FileValue, detecting the MIME type from content and
// falling back to declared when the content is unrecognized.
func NewFileValue(filename, declared string, content []byte) *FileValue {
	detected := declared
	if len(content) > 0 {
		m := mimetype.Detect(content)
		if m.String() != "application/octet-stream" || declared == "" {
			detected = m.String()
		}
	}
	return &FileValue{
		Filename:    filename,
		ContentType: detected,
		Size:        int64(len(content)),
		Content:     content,
	}
}

// MediaType is ContentType without parameters, lowercased.
func (f *FileValue) MediaType() string {
	mt := f.ContentType
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Extension returns the canonical extension for the media type, falling back
// to the original filename extension.
func (f *FileValue) Extension() string {
	switch f.MediaType() {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	if ext := mimetype.Lookup(f.MediaType()); ext != nil && ext.Extension() != "" {
		return ext.Extension()
	}
	return strings.ToLower(filepath.Ext(f.Filename))
}

func asFile(v interface{}) (*FileValue, bool) {
	switch f := v.(type) {
	case *FileValue:
		return f, f != nil
	case FileValue:
		return &f, true
	}
	return nil, false
}

func describeTypes(types []string) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		switch t {
		case "image/jpeg":
			names = append(names, "JPEG")
		case "image/png":
			names = append(names, "PNG")
		case "image/webp":
			names = append(names, "WebP")
		case "application/pdf":
			names = append(names, "PDF")
		default:
			names = append(names, t)
		}
	}
	return strings.Join(names, ", ")
}

func formatBytes(n int64) string {
	if n%MB == 0 {
		return fmt.Sprintf("%dMB", n/MB)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/float64(MB))
}
