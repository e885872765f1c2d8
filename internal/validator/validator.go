package validator

import (
	"fmt"
	"reflect"
	"strings"
)

// Validator validates structs based on their schema tags. It covers
// the two rules the taxonomy structs need: required and enum.
type Validator struct {
	tagName string
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		tagName: "schema",
	}
}

// Validate validates a struct based on its schema tags
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		structField := typ.Field(i)

		if !structField.IsExported() {
			continue
		}

		// Recurse into nested structs so composite results validate
		// in one call.
		if field.Kind() == reflect.Struct {
			if err := v.Validate(field.Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		tag := structField.Tag.Get(v.tagName)
		fieldName := getFieldName(structField)

		if err := v.validateField(field, tag, fieldName); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateField(value reflect.Value, tag string, fieldName string) error {
	if tag == "" {
		return nil
	}

	required := false
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == "required" {
			required = true
		}
	}

	if isZeroValue(value) {
		if required {
			return fmt.Errorf("field '%s' is required", fieldName)
		}
		return nil
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "enum:") {
			if err := v.validateEnum(value, part[5:], fieldName); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *Validator) validateEnum(value reflect.Value, enumValues string, fieldName string) error {
	allowedValues := strings.Split(enumValues, "|")
	currentValue := fmt.Sprintf("%v", value.Interface())

	for _, allowed := range allowedValues {
		if currentValue == allowed {
			return nil
		}
	}

	return fmt.Errorf("field '%s' must be one of: %s", fieldName, strings.Join(allowedValues, ", "))
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

// getFieldName prefers the json tag name so validation errors name
// the wire key the model actually has to emit.
func getFieldName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" || jsonTag == "-" {
		return field.Name
	}

	name := strings.TrimSpace(strings.Split(jsonTag, ",")[0])
	if name == "" {
		return field.Name
	}

	return name
}

// DefaultValidator is the default validator instance
var DefaultValidator = New()

// Validate validates a struct using the default validator
func Validate(s interface{}) error {
	return DefaultValidator.Validate(s)
}
