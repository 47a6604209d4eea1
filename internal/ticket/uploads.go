package ticket

import (
	"fmt"
	"io"
	"mime"
	"strings"
)

const (
	// MaxUploadFiles is the number of files accepted in one upload action.
	MaxUploadFiles = 10
	// MaxUploadBytes is the per-file size limit.
	MaxUploadBytes int64 = 8 * 1024 * 1024
)

var allowedUploadTypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/jpg":          {},
	"image/png":          {},
	"image/gif":          {},
	"image/webp":         {},
	"text/plain":         {},
	"text/csv":           {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// UploadFile describes a file selected for upload.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
}

// NormalizeContentType lower-cases a content type and drops its parameters.
func NormalizeContentType(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(parsed)
	}
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// AllowedUploadType reports whether contentType is on the upload allow-list.
func AllowedUploadType(contentType string) bool {
	_, ok := allowedUploadTypes[NormalizeContentType(contentType)]
	return ok
}

// ValidateUpload checks one file against the size limit and the type allow-list.
func ValidateUpload(file UploadFile) error {
	if file.Size > MaxUploadBytes {
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrFileTooLarge, file.Name, file.Size, MaxUploadBytes)
	}
	if !AllowedUploadType(file.ContentType) {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, file.Name, file.ContentType)
	}
	return nil
}

// ValidateUploads checks a whole upload action before any request is made.
func ValidateUploads(files []UploadFile) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > MaxUploadFiles {
		return fmt.Errorf("%w: %d selected, max %d", ErrTooManyFiles, len(files), MaxUploadFiles)
	}
	for _, file := range files {
		if err := ValidateUpload(file); err != nil {
			return err
		}
	}
	return nil
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}
