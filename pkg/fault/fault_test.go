package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clauseworks/contractd/pkg/fault"
)

func TestKindPredicates(t *testing.T) {
	assert.True(t, fault.IsValidation(fault.Validation("bad input")))
	assert.True(t, fault.IsNotFound(fault.NotFound("missing")))
	assert.True(t, fault.IsConflict(fault.Conflict("lost race")))

	assert.False(t, fault.IsValidation(fault.NotFound("missing")))
	assert.False(t, fault.IsConflict(errors.New("plain")))
	assert.False(t, fault.IsNotFound(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := fault.Conflict("version mismatch")
	wrapped := fmt.Errorf("update contract: %w", inner)

	assert.True(t, fault.IsConflict(wrapped))
	assert.False(t, fault.IsValidation(wrapped))
}

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := errors.New("pq: duplicate key value")
	err := fault.Conflict("proposal already pending").Wrap(cause)

	assert.True(t, fault.IsConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CONFLICT")
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestErrorString(t *testing.T) {
	err := fault.Validation("title is required")
	assert.Equal(t, "VALIDATION: title is required", err.Error())
}
