// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator"

	"github.com/familyshare/familyshare/internal/middleware"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("photo_url", func(fl validator.FieldLevel) bool {
		return middleware.ValidatePhotoURL(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("app_id", func(fl validator.FieldLevel) bool {
		return middleware.ValidateAppID(fl.Field().String()) == nil
	})
}

// Validate checks a decoded request against its struct tags and returns a
// single client-facing message naming the first offending field.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return errors.New(describe(verrs[0]))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " exceeds " + fe.Param()
	case "min":
		return field + " is below " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "photo_url":
		return field + " must be an http or https URL"
	case "app_id":
		return field + " contains an invalid app identifier"
	default:
		return field + " is invalid"
	}
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ListResponse wraps a list of resources.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// NewList returns a list response that never encodes data as null.
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items}
}

// LatLngRequest is a coordinate pair in a request body.
type LatLngRequest struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}
