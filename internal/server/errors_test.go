package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "indexes", Message: "must not be negative"}
	assert.Equal(t, "validation error: indexes - must not be negative", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestErrNoSelection(t *testing.T) {
	assert.Equal(t, "no selection is pending", (&ErrNoSelection{}).Error())
	assert.Equal(t, "no pending selection: abc", (&ErrNoSelection{ID: "abc"}).Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "validation", err: &ErrValidation{Field: "f", Message: "m"}, expected: http.StatusBadRequest},
		{name: "no selection", err: &ErrNoSelection{ID: "x"}, expected: http.StatusNotFound},
		{name: "harvest running", err: harvest.ErrHarvestRunning, expected: http.StatusConflict},
		{name: "loop running", err: fmt.Errorf("start: %w", harvest.ErrAlreadyRunning), expected: http.StatusConflict},
		{name: "store locked", err: &store.LockedError{Dir: "/tmp"}, expected: http.StatusConflict},
		{name: "capability", err: &types.CapabilityError{Message: "no directory granted"}, expected: http.StatusPreconditionFailed},
		{name: "corrupt checkpoint", err: &store.CorruptCheckpointError{Message: "bad"}, expected: http.StatusUnprocessableEntity},
		{name: "other", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}
