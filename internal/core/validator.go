package core

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"droplink/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation.
// A single instance is shared across handlers; the underlying validate
// instance caches struct metadata and is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates the given struct against its `validate` tags.
// Violations are returned as a *types.AppError with per-field details so
// handlers can pass the error straight to core.Error.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}
