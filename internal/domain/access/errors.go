package access

import (
	"errors"
	"fmt"

	"github.com/carehub/carehub/internal/domain/records"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

func forbidden(p Principal, op Operation, e Entity) error {
	return fmt.Errorf("%w: %s may not %s %s", ErrForbidden, p.Role, op, e)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", records.ErrValidation, fmt.Sprintf(format, args...))
}

func errPatientNotFound(id string) error {
	return fmt.Errorf("patient %q: %w", id, records.ErrNotFound)
}

func fmtTransition(from, to records.AppointmentStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
