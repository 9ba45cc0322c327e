package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"dmcaguard/internal/types"
)

// Validator wraps go-playground/validator with the domain-specific tags the
// request DTOs use, and translates validation failures into AppErrors the
// response layer can render.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()

	// plan_tier: one of the purchasable tiers. The super-user tier is never
	// accepted from request payloads.
	_ = v.RegisterValidation("plan_tier", func(fl validator.FieldLevel) bool {
		switch types.PlanTier(fl.Field().String()) {
		case types.PlanFree, types.PlanBasic, types.PlanPremium, types.PlanEnterprise:
			return true
		default:
			return false
		}
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the struct against its `validate` tags.
// On failure it returns a *types.AppError with per-field details so the
// client sees which fields failed and why.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the input was not a struct. Programmer
		// error, surfaced as internal.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "invalid validation target", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = describeFailure(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		"request validation failed",
		nil,
		details,
	)
}

// describeFailure renders a single field failure as a short client-facing
// message.
func describeFailure(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "plan_tier":
		return "must be a valid plan tier"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed validation rule: " + fe.Tag()
	}
}
