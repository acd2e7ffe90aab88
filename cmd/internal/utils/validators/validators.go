package validators

import (
	"github.com/go-playground/validator/v10"
	"reflect"
	"strings"
)

// NoDupes fails when a string slice carries the same value twice.
func NoDupes(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}

	seen := make(map[string]struct{}, field.Len())
	for i := 0; i < field.Len(); i++ {
		v := field.Index(i).String()
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}

// NoWhiteSpaces fails when the string contains any whitespace.
func NoWhiteSpaces(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), " \t\r\n")
}

// IsLowerHex accepts lowercase hex only, the alphabet signed link tokens use.
func IsLowerHex(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Register installs the custom tags used by request structs.
func Register(validate *validator.Validate) {
	_ = validate.RegisterValidation("nodupes", NoDupes)
	_ = validate.RegisterValidation("nospaces", NoWhiteSpaces)
	_ = validate.RegisterValidation("lowerhex", IsLowerHex)
}
