package filter

import "fmt"

// Operator is a comparison operator.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Contains
	ContainsIgnoreCase
	StartsWith
	StartsWithIgnoreCase
	EndsWith
	EndsWithIgnoreCase
	ArrayContains
)

var operatorNames = [...]string{
	Equal:                "Equal",
	NotEqual:             "NotEqual",
	GreaterThan:          "GreaterThan",
	GreaterThanOrEqual:   "GreaterThanOrEqual",
	LessThan:             "LessThan",
	LessThanOrEqual:      "LessThanOrEqual",
	Contains:             "Contains",
	ContainsIgnoreCase:   "ContainsIgnoreCase",
	StartsWith:           "StartsWith",
	StartsWithIgnoreCase: "StartsWithIgnoreCase",
	EndsWith:             "EndsWith",
	EndsWithIgnoreCase:   "EndsWithIgnoreCase",
	ArrayContains:        "ArrayContains",
}

func (op Operator) String() string {
	if op < 0 || int(op) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorNames[op]
}

// ParseOperator maps a name back to its Operator.
func ParseOperator(s string) (Operator, bool) {
	for i, name := range operatorNames {
		if name == s {
			return Operator(i), true
		}
	}
	return 0, false
}

// IsString reports whether op is a string-pattern operator.
func (op Operator) IsString() bool {
	return op >= Contains && op <= EndsWithIgnoreCase
}

// IgnoreCase reports whether op matches case-insensitively.
func (op Operator) IgnoreCase() bool {
	return op == ContainsIgnoreCase || op == StartsWithIgnoreCase || op == EndsWithIgnoreCase
}

// IsOrdering reports whether op compares by order rather than equality.
func (op Operator) IsOrdering() bool {
	return op >= GreaterThan && op <= LessThanOrEqual
}

// Mirror returns the operator that holds with the operands swapped:
// a < b is b > a.
func (op Operator) Mirror() Operator {
	switch op {
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	}
	return op
}

// LogicalOperator combines predicates.
type LogicalOperator int

const (
	OpAnd LogicalOperator = iota
	OpOr
	OpNot
)

var logicalNames = [...]string{OpAnd: "And", OpOr: "Or", OpNot: "Not"}

func (op LogicalOperator) String() string {
	if op < 0 || int(op) >= len(logicalNames) {
		return fmt.Sprintf("LogicalOperator(%d)", int(op))
	}
	return logicalNames[op]
}

// ParseLogicalOperator maps a name back to its LogicalOperator.
func ParseLogicalOperator(s string) (LogicalOperator, bool) {
	for i, name := range logicalNames {
		if name == s {
			return LogicalOperator(i), true
		}
	}
	return 0, false
}

// ArithmeticOp is an arithmetic operator.
type ArithmeticOp int

const (
	Add ArithmeticOp = iota
	Subtract
	Multiply
	Divide
	Modulo
)

var arithmeticSymbols = [...]string{Add: "+", Subtract: "-", Multiply: "*", Divide: "/", Modulo: "%"}

// Symbol is the infix spelling of op.
func (op ArithmeticOp) Symbol() string {
	if op < 0 || int(op) >= len(arithmeticSymbols) {
		return "?"
	}
	return arithmeticSymbols[op]
}

func (op ArithmeticOp) String() string { return op.Symbol() }

// ParseArithmeticOp maps a symbol back to its ArithmeticOp.
func ParseArithmeticOp(s string) (ArithmeticOp, bool) {
	for i, sym := range arithmeticSymbols {
		if sym == s {
			return ArithmeticOp(i), true
		}
	}
	return 0, false
}

// Function is a known scalar function. FuncNone marks its absence.
type Function int

const (
	FuncNone Function = iota
	FuncToLower
	FuncToUpper
	FuncTrim
	FuncTrimStart
	FuncTrimEnd
	FuncAbs
	FuncRound
	FuncFloor
	FuncCeiling
	FuncLength
	FuncCount
	FuncYear
	FuncMonth
	FuncDay
	FuncHour
	FuncMinute
	FuncSecond
)

var functionNames = [...]string{
	FuncNone:      "",
	FuncToLower:   "ToLower",
	FuncToUpper:   "ToUpper",
	FuncTrim:      "Trim",
	FuncTrimStart: "TrimStart",
	FuncTrimEnd:   "TrimEnd",
	FuncAbs:       "Abs",
	FuncRound:     "Round",
	FuncFloor:     "Floor",
	FuncCeiling:   "Ceiling",
	FuncLength:    "Length",
	FuncCount:     "Count",
	FuncYear:      "Year",
	FuncMonth:     "Month",
	FuncDay:       "Day",
	FuncHour:      "Hour",
	FuncMinute:    "Minute",
	FuncSecond:    "Second",
}

func (f Function) String() string {
	if f < 0 || int(f) >= len(functionNames) {
		return fmt.Sprintf("Function(%d)", int(f))
	}
	return functionNames[f]
}

// ParseFunction maps a name back to its Function. The empty name is FuncNone.
func ParseFunction(s string) (Function, bool) {
	for i, name := range functionNames {
		if name == s {
			return Function(i), true
		}
	}
	return FuncNone, false
}

// IsCollection reports whether f measures a string or a collection.
func (f Function) IsCollection() bool {
	return f == FuncLength || f == FuncCount
}

// IsDatePart reports whether f extracts a component of a date-time.
func (f Function) IsDatePart() bool {
	return f >= FuncYear && f <= FuncSecond
}

// IsStringTransform reports whether f maps a string to a string.
func (f Function) IsStringTransform() bool {
	return f >= FuncToLower && f <= FuncTrimEnd
}
