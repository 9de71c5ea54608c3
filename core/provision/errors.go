package provision

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTarget          = errors.New("invalid target")
	ErrUnknownServiceType     = errors.New("unknown service type")
	ErrUnknownSocialGroup     = errors.New("unknown social group")
	ErrUnknownLivingSituation = errors.New("unknown living situation")
)

// InputError reports a request referring to an unknown identifier.
type InputError struct {
	Field string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func inputError(field, value string, err error) error {
	return &InputError{Field: field, Value: value, Err: err}
}

// IsInputError reports whether err was caused by invalid input.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
