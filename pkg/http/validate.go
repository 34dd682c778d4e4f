package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate *validator.Validate

// pairPattern matches exchange pairs such as BTC/USDT.
var pairPattern = regexp.MustCompile(`^[A-Z0-9]+/[A-Z0-9]+$`)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)
	_ = validate.RegisterValidation("pair", func(fl validator.FieldLevel) bool {
		return pairPattern.MatchString(fl.Field().String())
	})
}

// Validator returns the shared validator so non-HTTP entry points (Kafka, CLI) apply the same rules.
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct applies defaults then validation outside an echo request.
func ValidateStruct(req interface{}) []ValidationError {
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.Struct(req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "query", "param"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// ReadAndValidateRequest binds path, query and body, applies defaults, and validates.
// It returns nil or the list of rejected fields.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, describe(fe))
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_MALFORMED", Message: fmt.Sprint(he.Message)}}
	}
	return []ValidationError{{Code: "ERR_MALFORMED", Message: err.Error()}}
}

// bound describes comparison tags: the params key and the phrase used in the message.
var bound = map[string][2]string{
	"min": {"min", "at least"},
	"gte": {"min", "greater than or equal to"},
	"max": {"max", "at most"},
	"lte": {"max", "less than or equal to"},
	"gt":  {"value", "greater than"},
	"lt":  {"value", "less than"},
}

func describe(fe validator.FieldError) ValidationError {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	ve := ValidationError{Code: "ERR_" + strings.ToUpper(tag), Field: field}

	switch tag {
	case "required":
		ve.Message = field + " is required"
	case "pair":
		ve.Message = field + " must be a pair like BTC/USDT"
	case "oneof":
		opts := strings.Fields(param)
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.Join(opts, ", "))
		ve.Params = map[string]interface{}{"options": opts}
	default:
		b, ok := bound[tag]
		if !ok {
			ve.Message = fmt.Sprintf("%s failed validation: %s", field, tag)
			break
		}
		ve.Message = fmt.Sprintf("%s must be %s %s", field, b[1], param)
		if fe.Kind() == reflect.String && (tag == "min" || tag == "max") {
			ve.Message += " characters"
		}
		ve.Params = map[string]interface{}{b[0]: param}
	}
	return ve
}
