package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

type checkoutPayload struct {
	Tier  string `validate:"required,plan_tier"`
	Email string `validate:"omitempty,email"`
}

func TestValidateStruct_Passes(t *testing.T) {
	v := NewValidator(testLogger())
	assert.NoError(t, v.ValidateStruct(checkoutPayload{Tier: "premium"}))
}

func TestValidateStruct_CollectsFieldDetails(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(checkoutPayload{Tier: "", Email: "not-an-email"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationFailed, appErr.Code)
	assert.Equal(t, "this field is required", appErr.Details["tier"])
	assert.Equal(t, "must be a valid email address", appErr.Details["email"])
}

func TestValidateStruct_RejectsSuperUserTier(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(checkoutPayload{Tier: "super_user"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "must be a valid plan tier", appErr.Details["tier"])
}
