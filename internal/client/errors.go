package client

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

// RelayError is a non-2xx answer from a relay endpoint.
type RelayError struct {
	Path    string
	Status  int
	Message string
}

func (e *RelayError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("relay %s: %d %s", e.Path, e.Status, msg)
}

// FileError records one file whose upload request failed.
type FileError struct {
	Name string
	Err  error
}

// UploadError reports an upload action where at least one file failed. Succeeded holds the
// formatted records of files that did post; the provider keeps them.
type UploadError struct {
	Failed    []FileError
	Succeeded []ticket.Message
}

func (e *UploadError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return fmt.Sprintf("upload failed for %d of %d files: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(names, ", "))
}

func (e *UploadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
