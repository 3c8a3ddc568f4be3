// Package schema describes generated property-bag types.
//
// An EntityKind lists the business fields of one kind of EAV object. Field
// types are recursive: arrays and dictionaries carry element types, business
// classes carry their own fields. The predicate, grouping and window
// compilers consult these types to decide how a member access is stored.
//
// Entity kinds are usually compiled from CUE definitions (see CompileEntity)
// but can be assembled in Go for tests and embedded callers.
package schema

import (
	"fmt"
	"strings"
)

// Kind classifies a declared type.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindDecimal
	KindBool
	KindDateTime
	KindGuid
	KindEnum
	KindReference
	KindArray
	KindDictionary
	KindObject
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindString:     "string",
	KindInt:        "int",
	KindFloat:      "float",
	KindDecimal:    "decimal",
	KindBool:       "bool",
	KindDateTime:   "datetime",
	KindGuid:       "guid",
	KindEnum:       "enum",
	KindReference:  "reference",
	KindArray:      "array",
	KindDictionary: "dictionary",
	KindObject:     "object",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s && Kind(k) != KindInvalid {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

// Type is a declared field type.
//
// Elem is set for arrays and dictionaries, Key for dictionaries, Fields for
// business classes, EnumValues for enums. Name carries the enum, class or
// referenced dictionary name where one exists.
type Type struct {
	Kind       Kind
	Name       string
	Elem       *Type
	Key        *Type
	Fields     []Field
	EnumValues []string
}

// Field is a named member of an entity kind or business class.
type Field struct {
	Name string
	Type *Type
}

// Shared scalar types. Treat as read-only.
var (
	String   = &Type{Kind: KindString}
	Int      = &Type{Kind: KindInt}
	Float    = &Type{Kind: KindFloat}
	Decimal  = &Type{Kind: KindDecimal}
	Bool     = &Type{Kind: KindBool}
	DateTime = &Type{Kind: KindDateTime}
	Guid     = &Type{Kind: KindGuid}
)

// ArrayOf returns an array type with the given element type.
func ArrayOf(elem *Type) *Type {
	return &Type{Kind: KindArray, Elem: elem}
}

// DictOf returns a dictionary type.
func DictOf(key, elem *Type) *Type {
	return &Type{Kind: KindDictionary, Key: key, Elem: elem}
}

// EnumOf returns an enum type whose ordinals index values.
func EnumOf(name string, values ...string) *Type {
	return &Type{Kind: KindEnum, Name: name, EnumValues: values}
}

// RefTo returns a reference type pointing at a foreign dictionary.
func RefTo(name string) *Type {
	return &Type{Kind: KindReference, Name: name}
}

// ObjectOf returns a business-class type.
func ObjectOf(name string, fields ...Field) *Type {
	return &Type{Kind: KindObject, Name: name, Fields: fields}
}

// F is shorthand for a Field.
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// Lookup returns the named field of a business class.
func (t *Type) Lookup(name string) (*Type, bool) {
	if t == nil {
		return nil, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Is reports whether t is non-nil and of kind k.
func (t *Type) Is(k Kind) bool {
	return t != nil && t.Kind == k
}

// IsNumeric reports whether arithmetic applies to t.
func (t *Type) IsNumeric() bool {
	return t != nil && (t.Kind == KindInt || t.Kind == KindFloat || t.Kind == KindDecimal)
}

// String renders the type in the notation used by error messages and the CLI.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindArray:
		return "[]" + t.Elem.String()
	case KindDictionary:
		return "map[" + t.Key.String() + "]" + t.Elem.String()
	case KindEnum, KindReference, KindObject:
		if t.Name != "" {
			return t.Kind.String() + "(" + t.Name + ")"
		}
	}
	return t.Kind.String()
}

// RootMarker is the member of the entity envelope that holds the property
// bag. It never appears in storage paths.
const RootMarker = "Props"

// BaseFields are the system columns of the entity envelope.
var BaseFields = []Field{
	{Name: "Id", Type: Int},
	{Name: "ParentId", Type: Int},
	{Name: "OwnerId", Type: Int},
	{Name: "Name", Type: String},
	{Name: "Note", Type: String},
	{Name: "DateCreate", Type: DateTime},
	{Name: "DateModify", Type: DateTime},
}

// BaseField returns the type of an envelope field.
func BaseField(name string) (*Type, bool) {
	for _, f := range BaseFields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// EntityKind is one generated property-bag type.
type EntityKind struct {
	Name   string
	Fields []Field
}

// PropsType returns the property bag as a business-class type.
func (e *EntityKind) PropsType() *Type {
	return &Type{Kind: KindObject, Name: e.Name, Fields: e.Fields}
}

// Field returns the declared type of a property-bag field.
func (e *EntityKind) Field(name string) (*Type, bool) {
	return e.PropsType().Lookup(name)
}

// ParseType reads the notation produced by Type.String. Business classes
// come back without their fields.
func ParseType(s string) (*Type, error) {
	switch {
	case s == "":
		return nil, fmt.Errorf("empty type")
	case strings.HasPrefix(s, "[]"):
		elem, err := ParseType(s[2:])
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case strings.HasPrefix(s, "map["):
		depth, end := 0, -1
		for i := 3; i < len(s); i++ {
			switch s[i] {
			case '[':
				depth++
			case ']':
				depth--
			}
			if depth == 0 {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unterminated map key in %q", s)
		}
		key, err := ParseType(s[4:end])
		if err != nil {
			return nil, err
		}
		elem, err := ParseType(s[end+1:])
		if err != nil {
			return nil, err
		}
		return DictOf(key, elem), nil
	}

	name := ""
	if open := strings.IndexByte(s, '('); open > 0 && strings.HasSuffix(s, ")") {
		name = s[open+1 : len(s)-1]
		s = s[:open]
	}
	k, ok := ParseKind(s)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", s)
	}
	return &Type{Kind: k, Name: name}, nil
}
