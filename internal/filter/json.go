package filter

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/roach88/eavq/internal/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire discriminators.
const (
	typeComparison  = "comparison"
	typeLogical     = "logical"
	typeIn          = "in"
	typeNullCheck   = "nullCheck"
	typeConstant    = "constant"
	typePropertyRef = "property"
	typeArithmetic  = "arithmetic"
	typeFunction    = "function"
	typeCustom      = "custom"
)

// Marshal encodes a filter tree as JSON. Every node is an object with a
// "type" discriminator; map keys are sorted so equal trees encode equally.
func Marshal(e Expression) ([]byte, error) {
	doc, err := Document(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Document converts a filter tree into plain maps and slices, the form
// shared by the JSON encoding and Fingerprint.
func Document(e Expression) (map[string]any, error) {
	switch n := e.(type) {
	case Comparison:
		return comparisonDoc(n)
	case *Comparison:
		return comparisonDoc(*n)
	case Logical:
		return logicalDoc(n)
	case *Logical:
		return logicalDoc(*n)
	case In:
		return map[string]any{
			"type":     typeIn,
			"property": propertyDoc(n.Property),
			"values":   nonNil(n.Values),
		}, nil
	case *In:
		return Document(*n)
	case NullCheck:
		return map[string]any{
			"type":        typeNullCheck,
			"property":    propertyDoc(n.Property),
			"isEqualNull": n.IsEqualNull,
		}, nil
	case *NullCheck:
		return Document(*n)
	case nil:
		return nil, fmt.Errorf("cannot encode nil expression")
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", e)
	}
}

func comparisonDoc(c Comparison) (map[string]any, error) {
	doc := map[string]any{
		"type":     typeComparison,
		"property": propertyDoc(c.Property),
		"operator": c.Operator.String(),
	}
	if !c.IsExtended() {
		doc["value"] = c.Value
		return doc, nil
	}
	left, err := valueDoc(c.Left)
	if err != nil {
		return nil, fmt.Errorf("left operand: %w", err)
	}
	right, err := valueDoc(c.Right)
	if err != nil {
		return nil, fmt.Errorf("right operand: %w", err)
	}
	doc["left"] = left
	doc["right"] = right
	return doc, nil
}

func logicalDoc(l Logical) (map[string]any, error) {
	operands := make([]any, 0, len(l.Operands))
	for i, op := range l.Operands {
		d, err := Document(op)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		operands = append(operands, d)
	}
	return map[string]any{
		"type":     typeLogical,
		"operator": l.Operator.String(),
		"operands": operands,
	}, nil
}

func propertyDoc(p PropertyInfo) map[string]any {
	doc := map[string]any{"path": p.Path}
	if p.Type != nil {
		doc["valueType"] = p.Type.String()
	}
	if p.IsBaseField {
		doc["base"] = true
	}
	if p.Function != FuncNone {
		doc["function"] = p.Function.String()
	}
	return doc
}

func valueDoc(ve ValueExpression) (map[string]any, error) {
	switch n := ve.(type) {
	case Constant:
		doc := map[string]any{"type": typeConstant, "value": n.Value}
		if n.Type != nil {
			doc["valueType"] = n.Type.String()
		}
		return doc, nil
	case *Constant:
		return valueDoc(*n)
	case PropertyRef:
		doc := propertyDoc(PropertyInfo{Path: n.Path, Type: n.Type, IsBaseField: n.IsBaseField})
		doc["type"] = typePropertyRef
		return doc, nil
	case *PropertyRef:
		return valueDoc(*n)
	case Arithmetic:
		left, err := valueDoc(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := valueDoc(n.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": typeArithmetic, "op": n.Op.Symbol(), "left": left, "right": right}, nil
	case *Arithmetic:
		return valueDoc(*n)
	case FunctionCall:
		arg, err := valueDoc(n.Arg)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": typeFunction, "function": n.Function.String(), "arg": arg}, nil
	case *FunctionCall:
		return valueDoc(*n)
	case CustomFunctionCall:
		args := make([]any, 0, len(n.Args))
		for _, a := range n.Args {
			d, err := valueDoc(a)
			if err != nil {
				return nil, err
			}
			args = append(args, d)
		}
		return map[string]any{"type": typeCustom, "name": n.Name, "args": args}, nil
	case *CustomFunctionCall:
		return valueDoc(*n)
	case nil:
		return nil, fmt.Errorf("nil value expression")
	default:
		return nil, fmt.Errorf("unsupported value expression type: %T", ve)
	}
}

func nonNil(values []any) []any {
	if values == nil {
		return []any{}
	}
	return values
}

// wireNode is the decoding form of any node. Fields unused by a node type
// stay empty.
type wireNode struct {
	Type        string              `json:"type"`
	Property    *wireProperty       `json:"property"`
	Operator    string              `json:"operator"`
	Value       jsoniter.RawMessage `json:"value"`
	Values      jsoniter.RawMessage `json:"values"`
	IsEqualNull bool                `json:"isEqualNull"`
	Operands    []wireNode          `json:"operands"`
	Left        *wireNode           `json:"left"`
	Right       *wireNode           `json:"right"`

	// Value expression fields.
	Path      string     `json:"path"`
	ValueType string     `json:"valueType"`
	Base      bool       `json:"base"`
	Op        string     `json:"op"`
	Function  string     `json:"function"`
	Arg       *wireNode  `json:"arg"`
	Name      string     `json:"name"`
	Args      []wireNode `json:"args"`
}

type wireProperty struct {
	Path      string `json:"path"`
	ValueType string `json:"valueType"`
	Base      bool   `json:"base"`
	Function  string `json:"function"`
}

// Unmarshal decodes the JSON produced by Marshal. Constant values are
// restored to the Go types the declared type implies.
func Unmarshal(data []byte) (Expression, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return w.expression()
}

func (w *wireNode) expression() (Expression, error) {
	switch w.Type {
	case typeComparison:
		prop, err := w.Property.info()
		if err != nil {
			return nil, err
		}
		op, ok := ParseOperator(w.Operator)
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", w.Operator)
		}
		c := Comparison{Property: prop, Operator: op}
		if w.Left != nil || w.Right != nil {
			if w.Left == nil || w.Right == nil {
				return nil, fmt.Errorf("extended comparison needs both operands")
			}
			if c.Left, err = w.Left.value(); err != nil {
				return nil, err
			}
			if c.Right, err = w.Right.value(); err != nil {
				return nil, err
			}
			return c, nil
		}
		valueType := prop.Type
		if op == ArrayContains && valueType.Is(schema.KindArray) {
			valueType = valueType.Elem
		}
		if prop.Function != FuncNone {
			valueType = functionResultType(prop.Function, valueType)
		}
		if c.Value, err = decodeValue(w.Value, valueType); err != nil {
			return nil, fmt.Errorf("value of '%s': %w", prop.Path, err)
		}
		return c, nil

	case typeLogical:
		op, ok := ParseLogicalOperator(w.Operator)
		if !ok {
			return nil, fmt.Errorf("unknown logical operator %q", w.Operator)
		}
		l := Logical{Operator: op, Operands: make([]Expression, 0, len(w.Operands))}
		for i := range w.Operands {
			e, err := w.Operands[i].expression()
			if err != nil {
				return nil, err
			}
			l.Operands = append(l.Operands, e)
		}
		return l, nil

	case typeIn:
		prop, err := w.Property.info()
		if err != nil {
			return nil, err
		}
		var raw []jsoniter.RawMessage
		if len(w.Values) > 0 {
			if err := json.Unmarshal(w.Values, &raw); err != nil {
				return nil, fmt.Errorf("values of '%s': %w", prop.Path, err)
			}
		}
		in := In{Property: prop, Values: make([]any, 0, len(raw))}
		for _, r := range raw {
			v, err := decodeValue(r, prop.Type)
			if err != nil {
				return nil, fmt.Errorf("values of '%s': %w", prop.Path, err)
			}
			in.Values = append(in.Values, v)
		}
		return in, nil

	case typeNullCheck:
		prop, err := w.Property.info()
		if err != nil {
			return nil, err
		}
		return NullCheck{Property: prop, IsEqualNull: w.IsEqualNull}, nil
	}
	return nil, fmt.Errorf("unknown expression type %q", w.Type)
}

func (w *wireNode) value() (ValueExpression, error) {
	switch w.Type {
	case typeConstant:
		t, err := parseOptionalType(w.ValueType)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(w.Value, t)
		if err != nil {
			return nil, err
		}
		return Constant{Value: v, Type: t}, nil
	case typePropertyRef:
		t, err := parseOptionalType(w.ValueType)
		if err != nil {
			return nil, err
		}
		return PropertyRef{Path: w.Path, Type: t, IsBaseField: w.Base}, nil
	case typeArithmetic:
		op, ok := ParseArithmeticOp(w.Op)
		if !ok {
			return nil, fmt.Errorf("unknown arithmetic operator %q", w.Op)
		}
		if w.Left == nil || w.Right == nil {
			return nil, fmt.Errorf("arithmetic needs both operands")
		}
		left, err := w.Left.value()
		if err != nil {
			return nil, err
		}
		right, err := w.Right.value()
		if err != nil {
			return nil, err
		}
		return Arithmetic{Left: left, Op: op, Right: right}, nil
	case typeFunction:
		fn, ok := ParseFunction(w.Function)
		if !ok || fn == FuncNone {
			return nil, fmt.Errorf("unknown function %q", w.Function)
		}
		if w.Arg == nil {
			return nil, fmt.Errorf("function %s needs an argument", fn)
		}
		arg, err := w.Arg.value()
		if err != nil {
			return nil, err
		}
		return FunctionCall{Function: fn, Arg: arg}, nil
	case typeCustom:
		call := CustomFunctionCall{Name: w.Name, Args: make([]ValueExpression, 0, len(w.Args))}
		for i := range w.Args {
			a, err := w.Args[i].value()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, a)
		}
		return call, nil
	}
	return nil, fmt.Errorf("unknown value expression type %q", w.Type)
}

func (p *wireProperty) info() (PropertyInfo, error) {
	if p == nil {
		return PropertyInfo{}, fmt.Errorf("missing property")
	}
	t, err := parseOptionalType(p.ValueType)
	if err != nil {
		return PropertyInfo{}, err
	}
	fn, ok := ParseFunction(p.Function)
	if !ok {
		return PropertyInfo{}, fmt.Errorf("unknown function %q", p.Function)
	}
	return PropertyInfo{Path: p.Path, Type: t, IsBaseField: p.Base, Function: fn}, nil
}

func parseOptionalType(s string) (*schema.Type, error) {
	if s == "" {
		return nil, nil
	}
	return schema.ParseType(s)
}

// decodeValue restores a constant to the normalized Go type for t.
// Without a declared type numbers become int64 when integral, float64
// otherwise.
func decodeValue(raw jsoniter.RawMessage, t *schema.Type) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if t.Is(schema.KindArray) {
		var items []jsoniter.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			out := make([]any, 0, len(items))
			for _, it := range items {
				v, err := decodeValue(it, t.Elem)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		}
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	kind := schema.KindInvalid
	if t != nil {
		kind = t.Kind
	}
	switch kind {
	case schema.KindInt, schema.KindReference:
		return cast.ToInt64E(generic)
	case schema.KindFloat:
		return cast.ToFloat64E(generic)
	case schema.KindDecimal:
		return decimal.NewFromString(cast.ToString(generic))
	case schema.KindBool:
		return cast.ToBoolE(generic)
	case schema.KindDateTime:
		s, err := cast.ToStringE(generic)
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case schema.KindGuid:
		s, err := cast.ToStringE(generic)
		if err != nil {
			return nil, err
		}
		return uuid.Parse(s)
	case schema.KindString, schema.KindEnum:
		return cast.ToStringE(generic)
	}
	return normalizeGeneric(generic), nil
}

func normalizeGeneric(v any) any {
	switch x := v.(type) {
	case stdjson.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalizeGeneric(x[i])
		}
		return x
	}
	return v
}
