package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gookit/validate"

	"github.com/coah80/pastvoices/internal/models"
)

// ValidationError is a caller mistake; routes answer it with 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func validateStruct(kind string, v any) error {
	vd := validate.Struct(v)
	if !vd.Validate() {
		return invalid("Invalid %s data: %s", kind, vd.Errors.One())
	}
	return nil
}

func validatePatch(p *models.PersonaPatch) error {
	check := func(field string, v *string, required bool) error {
		if v == nil {
			return nil
		}
		if required && strings.TrimSpace(*v) == "" {
			return invalid("Invalid sub data: %s must not be empty", field)
		}
		if utf8.RuneCountInString(*v) > 200 && (field == "name" || field == "title") {
			return invalid("Invalid sub data: %s is longer than 200 characters", field)
		}
		return nil
	}
	for _, c := range []struct {
		field string
		v     *string
	}{
		{"name", p.Name},
		{"title", p.Title},
		{"bio", p.Bio},
		{"prompt", p.Prompt},
	} {
		if err := check(c.field, c.v, true); err != nil {
			return err
		}
	}
	return nil
}
