package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrCorruptSnapshot marks persisted data that could not be interpreted.
// It is logged by the component that detects it and never returned to callers.
var ErrCorruptSnapshot = stderrors.New("corrupt snapshot")

// ConfigError reports an invalid timer configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// StorageError wraps a failing durable store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if stderrors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func IsStorage(err error) bool {
	var storageErr *StorageError
	return stderrors.As(err, &storageErr)
}

// FromError maps domain failures onto the HTTP error envelope.
func FromError(err error, fallback string) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return New(http.StatusBadRequest, "invalid_config", cfgErr.Error())
	}

	if IsStorage(err) {
		return Unavailable("storage is temporarily unavailable")
	}

	return Internal(fallback)
}
