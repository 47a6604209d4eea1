package ticket

import "errors"

var (
	// ErrChannelNotFound indicates the ticket token does not resolve to a known channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrEmptyMessage indicates a send without text.
	ErrEmptyMessage = errors.New("message content is required")
	// ErrNoFiles indicates an upload without files.
	ErrNoFiles = errors.New("no files selected")
	// ErrTooManyFiles indicates an upload above MaxUploadFiles.
	ErrTooManyFiles = errors.New("too many files")
	// ErrFileTooLarge indicates a file above MaxUploadBytes.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType indicates a content type outside the upload allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ErrUnknownPackage indicates a package id that is not in the catalog.
var ErrUnknownPackage = errors.New("unknown package")
