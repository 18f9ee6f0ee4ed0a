package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakif/bookworm/internal/apperror"
)

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves the whole package.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names ("profileImage") instead of Go names ("ProfileImage").
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// messages maps "field.tag" to the user-facing message for that failure.
type messages map[string]string

// validateStruct runs the validator and converts the first failure into an
// apperror validation error. Fields are checked in declaration order.
func validateStruct(v any, msgs messages) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("service: validating %T: %w", v, err)
	}

	fe := verrs[0]
	if msg, ok := msgs[fe.Field()+"."+fe.Tag()]; ok {
		return apperror.ValidationFailed(fe.Field(), msg)
	}
	return apperror.ValidationFailed(fe.Field(), defaultMessage(fe))
}

func defaultMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s should be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s should be at most %s characters long", fe.Field(), fe.Param())
	case "email":
		return "Please provide a valid email"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
