package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "drone-fleet/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so drones see the field they actually sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates p against its `validate` tags. Failures come back as a
// VALIDATION DomainError listing every offending field.
func Struct(msg string, p any) error {
	if err := validate.Struct(p); err != nil {
		return toDomain(msg, err)
	}
	return nil
}

func toDomain(msg string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domainerrors.Wrap(domainerrors.ErrValidation, msg, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return domainerrors.NewValidationFields(msg, fields)
}
