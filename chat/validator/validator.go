// Package validator wraps go-playground/validator for event payload
// checking.
package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates inbound event payload structs against their
// validate tags.
type Validator struct {
	cli *validator.Validate
}

// ValidationError describes one failed field check.
type ValidationError struct {
	Field   string
	Message string
}

// New returns a ready Validator.
func New() *Validator {
	return &Validator{
		cli: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct checks every tagged field of s and returns one entry
// per violation, nil when the payload is valid.
func (v *Validator) ValidateStruct(s any) []ValidationError {
	err := v.cli.Struct(s)
	if err == nil {
		return nil
	}
	var out []ValidationError
	for _, fe := range err.(validator.ValidationErrors) {
		out = append(out, ValidationError{
			Field:   fe.StructField(),
			Message: fmt.Sprintf("failed on the %q tag", fe.Tag()),
		})
	}
	return out
}
