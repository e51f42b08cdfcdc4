package generative

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Every failure returned by a Generator matches exactly one of these.
var (
	ErrUnavailable          = errors.New("generative model unavailable")
	ErrTimeout              = errors.New("generative model timed out")
	ErrUnsupportedParameter = errors.New("generative model rejected a parameter")
)

// UnsupportedParameterError reports a request parameter the provider
// refused, such as a temperature on models that only accept the default.
type UnsupportedParameterError struct {
	Param string
	Err   error
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("unsupported parameter %q: %v", e.Param, e.Err)
}

func (e *UnsupportedParameterError) Unwrap() error { return e.Err }

func (e *UnsupportedParameterError) Is(target error) bool {
	return target == ErrUnsupportedParameter
}

var rejectionPhrases = []string{"unsupported", "only the default", "does not support", "not supported"}

func rejectsTemperature(msg string) bool {
	msg = strings.ToLower(msg)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, p := range rejectionPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Classify maps a provider error onto the failure kinds above. Errors that
// already carry a kind pass through unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout), errors.Is(err, ErrUnsupportedParameter):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case rejectsTemperature(err.Error()):
		return &UnsupportedParameterError{Param: "temperature", Err: err}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Status names the failure kind of err for logs and debug output.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnsupportedParameter):
		return "unsupported_parameter"
	}
	return "unavailable"
}
