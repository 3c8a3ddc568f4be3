package filter

import (
	"fmt"
	"strings"

	"github.com/roach88/eavq/internal/schema"
)

// ValidationResult reports structural problems of a filter tree.
type ValidationResult struct {
	// IsValid is true when Errors is empty.
	IsValid bool

	// Errors lists violations a downstream layer cannot translate.
	Errors []string

	// Warnings lists legal but suspicious shapes, such as an In over an
	// empty set.
	Warnings []string
}

// Validate checks a filter tree against the algebra's structural rules:
//  1. No null comparison values (NullCheck exists for that)
//  2. Paths never contain the property-bag root marker
//  3. String operators apply to string-typed properties only
//  4. ArrayContains applies to array-typed properties only
//  5. Not has exactly one operand
//  6. Extended comparisons fill both operand slots
//
// Validate is a pure function with no side effects.
func Validate(e Expression) ValidationResult {
	v := &validator{}
	v.validateExpression(e)
	return ValidationResult{
		IsValid:  len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateExpression(e Expression) {
	if e == nil {
		v.addError("nil expression")
		return
	}

	switch expr := e.(type) {
	case Comparison:
		v.validateComparison(expr)
	case *Comparison:
		v.validateComparison(*expr)
	case Logical:
		v.validateLogical(expr)
	case *Logical:
		v.validateLogical(*expr)
	case In:
		v.validateIn(expr)
	case *In:
		v.validateIn(*expr)
	case NullCheck:
		v.validateProperty(expr.Property)
	case *NullCheck:
		v.validateProperty(expr.Property)
	default:
		v.addError("unknown expression type: %T", e)
	}
}

func (v *validator) validateComparison(c Comparison) {
	v.validateProperty(c.Property)

	if c.IsExtended() {
		if c.Left == nil || c.Right == nil {
			v.addError("extended comparison on '%s' is missing an operand", c.Property.Path)
		}
		v.validateValue(c.Left)
		v.validateValue(c.Right)
		return
	}

	if c.Value == nil {
		v.addError("property '%s' compared to null - use NullCheck", c.Property.Path)
	}

	t := c.Property.Type
	if c.Property.Function != FuncNone {
		t = functionResultType(c.Property.Function, t)
	}
	switch {
	case c.Operator.IsString() && t != nil && !t.Is(schema.KindString):
		v.addError("operator %s requires a string property, '%s' is %s", c.Operator, c.Property.Path, t)
	case c.Operator == ArrayContains && t != nil && !t.Is(schema.KindArray):
		v.addError("operator ArrayContains requires an array property, '%s' is %s", c.Property.Path, t)
	case c.Operator.IsOrdering() && t.Is(schema.KindBool):
		v.addWarning("ordering comparison on boolean property '%s'", c.Property.Path)
	}
}

func (v *validator) validateLogical(l Logical) {
	if l.Operator == OpNot && len(l.Operands) != 1 {
		v.addError("Not takes exactly one operand, got %d", len(l.Operands))
	}
	for _, op := range l.Operands {
		v.validateExpression(op)
	}
}

func (v *validator) validateIn(in In) {
	v.validateProperty(in.Property)
	if len(in.Values) == 0 {
		v.addWarning("In on '%s' has an empty set and matches nothing", in.Property.Path)
	}
	for _, val := range in.Values {
		if val == nil {
			v.addError("In on '%s' contains null - use NullCheck", in.Property.Path)
			return
		}
	}
}

func (v *validator) validateProperty(p PropertyInfo) {
	if p.Path == "" {
		v.addError("empty property path")
		return
	}
	for _, seg := range strings.Split(p.Path, ".") {
		if seg == schema.RootMarker {
			v.addError("path '%s' contains the root marker %q", p.Path, schema.RootMarker)
			return
		}
	}
}

func (v *validator) validateValue(ve ValueExpression) {
	switch val := ve.(type) {
	case nil:
	case Constant, *Constant:
	case PropertyRef:
		v.validateProperty(PropertyInfo{Path: val.Path})
	case *PropertyRef:
		v.validateProperty(PropertyInfo{Path: val.Path})
	case Arithmetic:
		v.validateValue(val.Left)
		v.validateValue(val.Right)
	case *Arithmetic:
		v.validateValue(val.Left)
		v.validateValue(val.Right)
	case FunctionCall:
		v.validateValue(val.Arg)
	case *FunctionCall:
		v.validateValue(val.Arg)
	case CustomFunctionCall:
		v.validateArgs(val.Name, val.Args)
	case *CustomFunctionCall:
		v.validateArgs(val.Name, val.Args)
	default:
		v.addError("unknown value expression type: %T", ve)
	}
}

func (v *validator) validateArgs(name string, args []ValueExpression) {
	if name == "" {
		v.addError("custom function call without a name")
	}
	for _, a := range args {
		v.validateValue(a)
	}
}

// functionResultType is the declared type of f applied to a value of t.
func functionResultType(f Function, t *schema.Type) *schema.Type {
	switch {
	case f.IsStringTransform():
		return schema.String
	case f == FuncLength || f == FuncCount || f.IsDatePart():
		return schema.Int
	}
	return t
}
