package attendance

import "errors"

// Error kinds returned by the engine. Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrState         = errors.New("invalid state")
	ErrConflict      = errors.New("conflict")
	ErrAuthorization = errors.New("not authorized")
)

// Kind returns the engine error kind wrapped by err, or nil for anything else.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrState, ErrConflict, ErrAuthorization} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
