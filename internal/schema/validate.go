package schema

import (
	"fmt"
	"regexp"
)

// Validation error codes (E100-E199).
const (
	ErrDuplicateField     = "E101" // field declared twice on the same type
	ErrReservedName       = "E102" // field shadows the root marker or a pseudo-member
	ErrInvalidFieldName   = "E103" // name is not a valid identifier
	ErrInvalidDictKey     = "E104" // dictionary key kind is not a scalar
	ErrEmptyEnum          = "E105" // enum declares no values
	ErrMissingElementType = "E106" // array or dictionary without element type
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedNames cannot be used as property names because the path resolver
// gives them special meaning.
var reservedNames = map[string]bool{
	RootMarker:    true,
	"Length":      true,
	"Count":       true,
	"ContainsKey": true,
}

// Validate checks an entity kind against the naming and typing rules.
// Returns all errors found rather than stopping at the first.
func Validate(kind *EntityKind) []ValidationError {
	var errs []ValidationError
	validateFields(kind.Name, kind.Fields, &errs)
	return errs
}

func validateFields(owner string, fields []Field, errs *[]ValidationError) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		path := owner + "." + f.Name

		if !identifier.MatchString(f.Name) {
			*errs = append(*errs, ValidationError{Field: path, Code: ErrInvalidFieldName,
				Message: "field name must be an identifier"})
		}
		if reservedNames[f.Name] {
			*errs = append(*errs, ValidationError{Field: path, Code: ErrReservedName,
				Message: fmt.Sprintf("%q is reserved", f.Name)})
		}
		if seen[f.Name] {
			*errs = append(*errs, ValidationError{Field: path, Code: ErrDuplicateField,
				Message: "duplicate field"})
		}
		seen[f.Name] = true

		validateType(path, f.Type, errs)
	}
}

func validateType(path string, t *Type, errs *[]ValidationError) {
	if t == nil {
		*errs = append(*errs, ValidationError{Field: path, Code: ErrMissingElementType,
			Message: "missing type"})
		return
	}

	switch t.Kind {
	case KindEnum:
		if len(t.EnumValues) == 0 {
			*errs = append(*errs, ValidationError{Field: path, Code: ErrEmptyEnum,
				Message: "enum declares no values"})
		}
	case KindArray:
		validateType(path+"[]", t.Elem, errs)
	case KindDictionary:
		if t.Key == nil {
			*errs = append(*errs, ValidationError{Field: path, Code: ErrMissingElementType,
				Message: "dictionary without key type"})
		} else {
			switch t.Key.Kind {
			case KindArray, KindDictionary, KindObject, KindFloat:
				*errs = append(*errs, ValidationError{Field: path, Code: ErrInvalidDictKey,
					Message: fmt.Sprintf("dictionary key kind %s is not supported", t.Key.Kind)})
			}
		}
		validateType(path+"[]", t.Elem, errs)
	case KindObject:
		validateFields(path, t.Fields, errs)
	}
}
