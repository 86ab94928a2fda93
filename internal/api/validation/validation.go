// Package validation provides request decoding and validation.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/api/response"
)

var (
	// validate and decoder are package-level singletons that are safe for concurrent
	// read-only access (validate.Struct() and decoder.Decode() are thread-safe).
	// All registrations MUST happen in init() only, as these methods are NOT thread-safe.
	validate *validator.Validate
	decoder  *form.Decoder
)

func init() {
	validate = validator.New()
	decoder = form.NewDecoder()

	// Report fields by their wire name (query parameter or JSON key).
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}

		return fld.Name
	})

	decoder.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		if len(vals) == 0 || vals[0] == "" {
			return (*uuid.UUID)(nil), nil
		}

		id, err := uuid.Parse(vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid UUID: %w", err)
		}

		return &id, nil
	}, (*uuid.UUID)(nil))
}

// Errors carries the field errors of a failed validation.
type Errors struct {
	fields validator.ValidationErrors
	msg    string
}

func (e *Errors) Error() string { return e.msg }

func (e *Errors) Unwrap() error { return e.fields }

// ValidateStruct validates a struct using go-playground/validator.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}

		return &Errors{
			fields: validationErrors,
			msg:    "validation failed: " + strings.Join(messages, "; "),
		}
	}

	return err
}

// formatFieldError formats a single field validation error.
func formatFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fieldError.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldError.Param())
	default:
		return field + " is invalid"
	}
}

// GetValidationErrorDetails extracts field-level error details from validation errors
// Returns a slice of ErrorDetail for RFC 7807 Problem Details.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			details = append(details, response.ErrorDetail{
				Location: fieldError.Field(),
				Message:  formatFieldError(fieldError),
				Value:    fieldError.Value(),
			})
		}
	}

	return details
}

// RespondDecodeError answers a DecodeJSONBody or query decoding failure with 413 or 400.
func RespondDecodeError(w http.ResponseWriter, err error) {
	var verrs *Errors

	switch {
	case errors.Is(err, ErrBodyTooLarge):
		response.RespondError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", err.Error())
	case errors.As(err, &verrs):
		RespondValidationError(w, err)
	default:
		response.RespondBadRequest(w, err.Error())
	}
}

// RespondValidationError writes a validation error response with RFC 7807 Problem Details.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// DecodeQueryParams decodes URL query parameters into a struct.
func DecodeQueryParams(r *http.Request, dst any) error {
	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return fmt.Errorf("failed to decode query parameters: %w", err)
	}

	return nil
}

// ValidateAndDecodeQueryParams decodes and validates query parameters in one step.
func ValidateAndDecodeQueryParams(r *http.Request, dst any) error {
	if err := DecodeQueryParams(r, dst); err != nil {
		return err
	}

	return ValidateStruct(dst)
}

// ErrBodyTooLarge is returned by DecodeJSONBody when the body exceeds the MaxBody limit.
var ErrBodyTooLarge = errors.New("request body exceeds maximum allowed size")

// DecodeJSONBody decodes a JSON request body, rejecting unknown fields, and validates it.
// An empty body leaves dst untouched.
func DecodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}

		return fmt.Errorf("invalid request body: %w", err)
	}

	return ValidateStruct(dst)
}
