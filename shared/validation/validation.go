// Package validation checks decoded patches and reports problems per
// top-level JSON field.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notfutureyear", notFutureYear); err != nil {
		panic(err)
	}
	return v
}

func notFutureYear(fl validator.FieldLevel) bool {
	return fl.Field().Int() <= int64(time.Now().Year())
}

type FieldError struct {
	Field   string
	Message string
	Tag     string
}

// Validate checks obj and returns one error per failing top-level field, in
// struct order. Nested failures (list items) are reported on their parent.
func Validate(obj any) []FieldError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "", Message: err.Error(), Tag: "invalid"}}
	}

	var out []FieldError
	seen := map[string]bool{}
	for _, fe := range verrs {
		field := topLevelField(fe.Namespace())
		if seen[field] {
			continue
		}
		seen[field] = true
		out = append(out, FieldError{
			Field:   field,
			Message: message(fe),
			Tag:     fe.Tag(),
		})
	}
	return out
}

// topLevelField turns "AccountSettingsUpdate.social_links[0].platform" into
// "social_links".
func topLevelField(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	if i := strings.IndexAny(rest, ".["); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func message(fe validator.FieldError) string {
	value := fmt.Sprintf("%v", reflect.Indirect(reflect.ValueOf(fe.Value())))
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("Valid e-mail address required. %q is not valid.", value)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice for %s. Choose one of: %s", value, fe.Field(), fe.Param())
	case "iso3166_1_alpha2":
		return fmt.Sprintf("%q is not a valid country code", value)
	case "alpha", "lowercase":
		return fmt.Sprintf("%q is not a valid language code", value)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "notfutureyear":
		return fmt.Sprintf("%s cannot be in the future", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
