// Package filter is the Filter Algebra: the closed, serializable node set a
// compiled predicate becomes.
//
// ARCHITECTURE:
//
// The algebra sits between the predicate compiler and any SQL generator:
//
//	[expr AST] → [predicate compiler] → [Filter Algebra] → [querysql sqlite3]
//	                                                     → [querysql postgres]
//
// Nodes carry storage paths and declared types, never SQL. A downstream
// layer decides how a path maps onto its physical layout.
//
// NODE SET:
//
// Expression (predicate) nodes:
//   - Comparison: property OP value, optionally with extended left/right operands
//   - Logical: And / Or / Not over operands
//   - In: property value is one of a caller-supplied set
//   - NullCheck: property is (or is not) null
//
// ValueExpression (operand) nodes, used only in extended comparisons:
//   - Constant, PropertyRef, Arithmetic, FunctionCall, CustomFunctionCall
//
// SEALED INTERFACES:
//
// Expression and ValueExpression are sealed with marker methods. Consumers
// switch over every node type and fail on anything else, so a new node kind
// cannot be silently ignored.
//
// VALUE DOMAIN:
//
// Constant values are normalized by the compiler to: string, int64, float64,
// bool, decimal.Decimal, time.Time, uuid.UUID, or []any of those. Enum
// constants are their symbolic names and reference constants their integer
// ids, so nodes never hold caller-defined Go types.
//
// Nodes are immutable values. Two structurally identical predicates compile
// to equal nodes and share a Fingerprint.
package filter
