package errors

import "errors"

// Domain errors
var (
	// Structural errors abort script and CSP matching for a response
	ErrNoHTML            = errors.New("no html structure detected")
	ErrBodyTooLarge      = errors.New("body too large for fast scan")
	ErrMissingHead       = errors.New("missing or malformed <head> tag")
	ErrInvalidStructure  = errors.New("<head> and <body> are out of order")
	ErrScriptTagMismatch = errors.New("script open/close tag count mismatch")
	ErrUnclosedScriptTag = errors.New("script tag not closed within lookahead")

	// Fetch errors
	ErrEmptyTarget   = errors.New("target cannot be empty")
	ErrInvalidTarget = errors.New("invalid target")
	ErrFetchFailed   = errors.New("fetch failed")

	// Validation errors
	ErrInvalidHeader = errors.New("invalid header, expected name:value")
	ErrInvalidFormat = errors.New("unsupported output format")
)
