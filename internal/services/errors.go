package services

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by services and mapped to HTTP status codes by handlers.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrExternalService = errors.New("external service error")
	ErrPersistence     = errors.New("persistence error")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

func externalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalService, op, err)
}
