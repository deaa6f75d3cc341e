package validator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// identifierPattern matches index and type names: lowercase, no whitespace,
// no wildcard or path characters.
var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)

// fieldNamePattern matches flat field names. Dots are excluded so a field
// never addresses an object path.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return IsIdentifier(fl.Field().String())
	})
	_ = v.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
		return IsFieldName(fl.Field().String())
	})
	return v
}

// IsIdentifier reports whether s is a legal index, type or field name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// IsFieldName reports whether s is a legal document field name.
func IsFieldName(s string) bool {
	return fieldNamePattern.MatchString(s)
}

// Validate validates a struct using go-playground/validator tags.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: validationErrors}
		}
		return err
	}
	return nil
}

// Var validates a single value against a tag expression, e.g. Var(port, "min=1,max=65535").
func Var(v any, tag string) error {
	if err := validate.Var(v, tag); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return &ValidationError{Errors: validationErrors}
		}
		return err
	}
	return nil
}

// ValidationError wraps validator.ValidationErrors with a user-friendly message.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, err := range e.Errors {
		if err.Field() == "" {
			msgs = append(msgs, "value "+msgForTag(err))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", err.Field(), msgForTag(err)))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a map of field names to error messages.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Errors))
	for _, err := range e.Errors {
		fields[err.Field()] = msgForTag(err)
	}
	return fields
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "hostname_port":
		return "must be a host:port pair"
	case "identifier":
		return "must be a lowercase identifier"
	case "fieldname":
		return "must be a plain field name"
	case "dive":
		return "contains an invalid element"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// DecodeAndValidate reads JSON from the request body, decodes it into dst,
// and validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
