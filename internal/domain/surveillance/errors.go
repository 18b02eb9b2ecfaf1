package surveillance

import "errors"

var (
	// ErrNotFound is returned when the referenced disease does not exist or is inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFilter is returned for malformed identifiers, dates or out-of-range years.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidDimension is returned when an aggregation dimension is unknown or unusable.
	ErrInvalidDimension = errors.New("invalid dimension")
)
