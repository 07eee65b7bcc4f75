package generic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/attendance-ledger/generic"
)

// =============================================================================
// ERRORS
// =============================================================================

func TestTransientError_Classification(t *testing.T) {
	cause := assert.AnError
	err := generic.Transient("load punches", cause)

	assert.ErrorIs(t, err, generic.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, generic.IsRetryable(err))
	assert.False(t, generic.IsClientError(err))
	assert.Contains(t, err.Error(), "load punches")

	assert.NoError(t, generic.Transient("noop", nil))
}

func TestErrorCategories(t *testing.T) {
	assert.True(t, generic.IsConflict(generic.ErrDuplicateEntry))
	assert.True(t, generic.IsConflict(generic.ErrAlreadyReversed))
	assert.True(t, generic.IsNotFound(generic.ErrEntryNotFound))
	assert.True(t, generic.IsClientError(&generic.InvalidEntryError{Field: "quantity", Reason: "must be positive"}))
	assert.False(t, generic.IsRetryable(generic.ErrDuplicateEntry))
}
