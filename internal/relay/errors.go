package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

var (
	// ErrNotConfigured indicates the relay has no provider credential.
	ErrNotConfigured = errors.New("discord bot token is not configured")
	// ErrInvalidRequest indicates a request missing a required value.
	ErrInvalidRequest = errors.New("invalid request")
)

// FileError records one failed upload.
type FileError struct {
	Name string
	Err  error
}

// UploadError reports an upload action where at least one file failed. Succeeded lists the
// messages that did reach the provider; they are not rolled back.
type UploadError struct {
	Failed    []FileError
	Succeeded []ticket.ProviderMessage
}

func (e *UploadError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	first := ""
	if len(e.Failed) > 0 && e.Failed[0].Err != nil {
		first = ": " + e.Failed[0].Err.Error()
	}
	return fmt.Sprintf("upload failed for %d of %d files (%s)%s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(names, ", "), first)
}

// FailedNames lists the names of the files that failed.
func (e *UploadError) FailedNames() []string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	return names
}

// Unwrap exposes the per-file causes to errors.Is.
func (e *UploadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
