package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-shop-api/internal/domain"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	// Report JSON field names so messages match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Struct validates the given struct using its validate tags. Failures come
// back as a domain validation error with one clause per field.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, message(fe))
	}
	return domain.E(domain.KindValidation, strings.Join(msgs, "; "))
}

// Var validates a single value against tag, e.g. Var(email, "email").
func Var(value interface{}, tag string) bool {
	return v.Var(value, tag) == nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "numeric":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag())
	}
}
