package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// attrKey is the CUE attribute that carries kinds CUE cannot express natively.
//
//	Salary:  number @eav(decimal)
//	Hired:   string @eav(datetime)
//	Status:  "Active" | "Left" @eav(enum=Status)
//	Manager: int @eav(ref=Employees)
//	Skills:  {[string]: int} @eav(dict,key=string)
const attrKey = "eav"

// CompileEntity parses a CUE value into an EntityKind.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Employee: { Age: int }`)
//	kind, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Employee")))
func CompileEntity(v cue.Value) (*EntityKind, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	kind := &EntityKind{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		kind.Name = labels[len(labels)-1].String()
	}

	fields, err := compileFields(v, kind.Name)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &CompileError{
			Field:   kind.Name,
			Message: "entity must declare at least one field",
			Pos:     v.Pos(),
		}
	}
	kind.Fields = fields
	return kind, nil
}

// compileFields walks the regular fields of a struct in declaration order.
func compileFields(v cue.Value, owner string) ([]Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []Field
	for iter.Next() {
		name := iter.Label()
		t, err := compileType(iter.Value(), owner+"."+name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	return fields, nil
}

// compileType converts one CUE field value into a declared type.
func compileType(v cue.Value, field string) (*Type, error) {
	attrs, err := readAttrs(v)
	if err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}

	if attrs.scalar() {
		// An attribute on a list field types its elements.
		if v.IncompleteKind() == cue.ListKind {
			elem, err := attributedType(attrs, v.LookupPath(cue.MakePath(cue.AnyIndex)), field+"[]")
			if err != nil {
				return nil, err
			}
			return ArrayOf(elem), nil
		}
		return attributedType(attrs, v, field)
	}

	if attrs.has("dict") {
		keyKind := KindString
		if k, ok := attrs["key"]; ok && k != "" {
			parsed, ok := ParseKind(k)
			if !ok {
				return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown dictionary key kind %q", k), Pos: v.Pos()}
			}
			keyKind = parsed
		}
		elem, err := compileType(v.LookupPath(cue.MakePath(cue.AnyString)), field+"[]")
		if err != nil {
			return nil, err
		}
		return DictOf(&Type{Kind: keyKind}, elem), nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return String, nil
	case cue.IntKind:
		return Int, nil
	case cue.FloatKind, cue.NumberKind:
		return Float, nil
	case cue.BoolKind:
		return Bool, nil
	case cue.ListKind:
		elem, err := compileType(v.LookupPath(cue.MakePath(cue.AnyIndex)), field+"[]")
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case cue.StructKind:
		fields, err := compileFields(v, field)
		if err != nil {
			return nil, err
		}
		name := ""
		if sel := v.Path().Selectors(); len(sel) > 0 {
			name = sel[len(sel)-1].String()
		}
		return ObjectOf(name, fields...), nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// attributedType resolves the kinds CUE has no native form for.
func attributedType(attrs attrSet, v cue.Value, field string) (*Type, error) {
	switch {
	case attrs.has("datetime"):
		return DateTime, nil
	case attrs.has("decimal"):
		return Decimal, nil
	case attrs.has("guid"):
		return Guid, nil
	case attrs.has("ref"):
		name := attrs["ref"]
		if name == "" {
			return nil, &CompileError{Field: field, Message: "ref attribute requires a dictionary name", Pos: v.Pos()}
		}
		return RefTo(name), nil
	default:
		values, err := enumValues(v)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return EnumOf(attrs["enum"], values...), nil
	}
}

// attrSet holds the key/value arguments of an @eav attribute.
type attrSet map[string]string

func (a attrSet) has(key string) bool {
	_, ok := a[key]
	return ok
}

// scalar reports whether the attribute names a scalar kind.
func (a attrSet) scalar() bool {
	return a.has("datetime") || a.has("decimal") || a.has("guid") || a.has("ref") || a.has("enum")
}

func readAttrs(v cue.Value) (attrSet, error) {
	attr := v.Attribute(attrKey)
	if attr.Err() != nil {
		// No attribute on this field.
		return attrSet{}, nil
	}
	set := attrSet{}
	for i := 0; i < attr.NumArgs(); i++ {
		k, val := attr.Arg(i)
		if k == "" {
			return nil, fmt.Errorf("malformed @%s attribute: %s", attrKey, attr.Contents())
		}
		set[k] = val
	}
	return set, nil
}

// enumValues extracts the members of a string disjunction in source order.
func enumValues(v cue.Value) ([]string, error) {
	op, args := v.Expr()
	if op != cue.OrOp {
		if s, err := v.String(); err == nil {
			return []string{s}, nil
		}
		return nil, fmt.Errorf("enum must be a disjunction of string literals")
	}

	values := make([]string, 0, len(args))
	for _, a := range args {
		s, err := a.String()
		if err != nil {
			return nil, fmt.Errorf("enum member is not a string literal: %w", err)
		}
		values = append(values, s)
	}
	return values, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
