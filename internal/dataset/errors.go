package dataset

import "errors"

var (
	// ErrNoSamples is returned when a directory holds no .ply files.
	ErrNoSamples = errors.New("dataset: no samples")

	// ErrEmptySplit is returned when a batch is requested from a split with no samples.
	ErrEmptySplit = errors.New("dataset: split is empty")

	// ErrEmptyLabels is returned for a class label file with no integers.
	ErrEmptyLabels = errors.New("dataset: empty label file")

	// ErrMalformed is returned for PLY or label files that cannot be parsed.
	ErrMalformed = errors.New("dataset: malformed file")

	// ErrInvalidConfig is returned for invalid loader settings.
	ErrInvalidConfig = errors.New("dataset: invalid config")
)
