package serialization

import "errors"

// Common errors.
var (
	ErrTruncated        = errors.New("checkpoint truncated")
	ErrInvalidLength    = errors.New("invalid record length")
	ErrChecksumMismatch = errors.New("checksum mismatch: file may be corrupted")
)
