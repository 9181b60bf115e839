package records

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record has the referenced id.
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned for malformed drafts and patches.
	ErrValidation = errors.New("validation error")
	// ErrDuplicate is returned by CreateUnique when a conflicting record
	// exists. It is also an ErrValidation.
	ErrDuplicate = fmt.Errorf("%w: duplicate record", ErrValidation)
)
