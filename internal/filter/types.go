package filter

import "github.com/roach88/eavq/internal/schema"

// Expression is a compiled predicate.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	filterNode() // Marker method - seals interface to this package
}

// ValueExpression is an operand of an extended comparison.
//
// This is a sealed interface - only types in this package implement it.
type ValueExpression interface {
	valueNode() // Marker method - seals interface to this package
}

// ContainsKeyMarker is the final path segment of a dictionary key test:
// Comparison{Path: "Scores.ContainsKey", Operator: Equal, Value: "math"}.
const ContainsKeyMarker = "ContainsKey"

// PropertyInfo locates one stored value.
//
// Path never contains the property-bag root marker. Function, when set, is
// applied to the stored value before comparison (ToLower, Length, ...).
type PropertyInfo struct {
	Path        string
	Type        *schema.Type
	IsBaseField bool
	Function    Function
}

// Comparison compares a property with a value.
//
// Semantics:
//
//	<property> <operator> <value>
//
// For extended comparisons (arithmetic, function calls, date parts or two
// properties) Left and Right hold both operands and Value is unused:
//
//	<left> <operator> <right>
//
// Property still names the first property reference of the operands so
// consumers can index and log by it.
//
// Example:
//
//	Comparison{Property: PropertyInfo{Path: "Age", Type: schema.Int}, Operator: GreaterThan, Value: int64(30)}
//
// Translates to SQL (sqlite3):
//
//	json_extract(props, '$.Age') > ?
type Comparison struct {
	Property PropertyInfo
	Operator Operator
	Value    any
	Left     ValueExpression
	Right    ValueExpression
}

func (Comparison) filterNode() {}

// IsExtended reports whether the comparison uses the operand slots.
func (c Comparison) IsExtended() bool {
	return c.Left != nil || c.Right != nil
}

// Logical combines predicates.
//
// An empty And is always true and an empty Or always false. Not takes
// exactly one operand.
type Logical struct {
	Operator LogicalOperator
	Operands []Expression
}

func (Logical) filterNode() {}

// In tests a property for membership in a fixed set.
//
// An empty Values set matches nothing.
type In struct {
	Property PropertyInfo
	Values   []any
}

func (In) filterNode() {}

// NullCheck tests a property for null. IsEqualNull selects IS NULL over
// IS NOT NULL.
type NullCheck struct {
	Property    PropertyInfo
	IsEqualNull bool
}

func (NullCheck) filterNode() {}

// Constant is a literal operand.
type Constant struct {
	Value any
	Type  *schema.Type
}

func (Constant) valueNode() {}

// PropertyRef is a stored-value operand.
type PropertyRef struct {
	Path        string
	Type        *schema.Type
	IsBaseField bool
}

func (PropertyRef) valueNode() {}

// Arithmetic combines two operands.
type Arithmetic struct {
	Left  ValueExpression
	Op    ArithmeticOp
	Right ValueExpression
}

func (Arithmetic) valueNode() {}

// FunctionCall applies a known scalar function.
type FunctionCall struct {
	Function Function
	Arg      ValueExpression
}

func (FunctionCall) valueNode() {}

// CustomFunctionCall passes a database function through by name.
type CustomFunctionCall struct {
	Name string
	Args []ValueExpression
}

func (CustomFunctionCall) valueNode() {}

// And is shorthand for a conjunction.
func And(operands ...Expression) Logical {
	return Logical{Operator: OpAnd, Operands: operands}
}

// Or is shorthand for a disjunction.
func Or(operands ...Expression) Logical {
	return Logical{Operator: OpOr, Operands: operands}
}

// Not is shorthand for a negation.
func Not(operand Expression) Logical {
	return Logical{Operator: OpNot, Operands: []Expression{operand}}
}
