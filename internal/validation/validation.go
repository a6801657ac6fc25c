// Package validation checks request payloads before any store is touched.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/dataurl"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the application's custom rules:
//
//	image_dataurl  the string is a data URL of an image media type
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("image_dataurl", func(fl validator.FieldLevel) bool {
			return dataurl.IsImage(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates s and converts the first failure into a ValidationFailure.
func Struct(s any) error {
	return convert(Validator().Struct(s))
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	ves, ok := err.(validator.ValidationErrors)
	if !ok || len(ves) == 0 {
		return apperror.Validation("request", err.Error())
	}

	fe := ves[0]
	field := fieldName(fe)
	return apperror.Validation(field, message(fe))
}

// fieldName drops the top-level struct name from the namespace.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "image_dataurl":
		return "must be an image"
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "uuid":
		return "must be a UUID"
	case "hexcolor":
		return "must be a hex color"
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}
