package errors

import (
	"errors"
	"fmt"
)

// Is and As delegate to the standard library so call sites classifying
// against the sentinels below need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Base kinds. Specific sentinels wrap one of these so callers can classify
// with errors.Is without matching exact messages.
var (
	ErrValidation = fmt.Errorf("validation failed")
	ErrStore      = fmt.Errorf("store failure")
	ErrNotifier   = fmt.Errorf("notifier failure")
	ErrChannel    = fmt.Errorf("channel write failed")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

var (
	ErrEmptyMessage       = fmt.Errorf("%w: message must be a non-empty string", ErrValidation)
	ErrNotTextual         = fmt.Errorf("%w: message must be valid text", ErrValidation)
	ErrMissingGroup       = fmt.Errorf("%w: group id is required", ErrValidation)
	ErrCallerNotConnected = fmt.Errorf("%w: caller has no active calling connection", ErrValidation)
	ErrCalleeNotConnected = fmt.Errorf("%w: callee has no active calling connection", ErrValidation)
)
