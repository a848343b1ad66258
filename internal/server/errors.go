// Package server provides the HTTP control API of the harvester.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNoSelection indicates there is no pending selection with the given id
type ErrNoSelection struct {
	ID string
}

func (e *ErrNoSelection) Error() string {
	if e.ID == "" {
		return "no selection is pending"
	}
	return fmt.Sprintf("no pending selection: %s", e.ID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		noSel      *ErrNoSelection
		capErr     *types.CapabilityError
		locked     *store.LockedError
		corrupt    *store.CorruptCheckpointError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &noSel):
		return http.StatusNotFound
	case errors.Is(err, harvest.ErrHarvestRunning), errors.Is(err, harvest.ErrAlreadyRunning), errors.As(err, &locked):
		return http.StatusConflict
	case errors.As(err, &capErr):
		return http.StatusPreconditionFailed
	case errors.As(err, &corrupt):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
