// Package materialize converts flat JSON rows returned by the execution
// layer into typed results.
//
// The exported fields of the target struct play the role of constructor
// parameters. Field i pairs with member i of the result selector; its value
// is looked up under the field name (or its json tag), then under the
// member's alias, and finally, when the member reads the identifier of a
// referenced entity (g.Key.Manager.Id), under the name of the reference
// (Manager). Missing fields keep their zero value; pointer fields stay nil.
package materialize

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/roach88/eavq/internal/expr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReferenceKey is the conventional identifier member of a referenced
// entity.
const ReferenceKey = "Id"

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
)

// CoercionError reports a required numeric value that could not be
// converted to its field's type.
type CoercionError struct {
	Row   int
	Field string
	Type  reflect.Type
	Raw   string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("row %d: cannot coerce %s into %s (%s): %v", e.Row, e.Raw, e.Field, e.Type, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// Materialize decodes rows, a JSON array of flat objects, into values of
// T. selector may be nil, in which case fields are matched by name only.
func Materialize[T any](rows []byte, selector *expr.Lambda) ([]T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("materialize: target must be a struct, got %T", zero)
	}
	if !gjson.ValidBytes(rows) {
		return nil, fmt.Errorf("materialize: rows are not valid JSON")
	}
	parsed := gjson.ParseBytes(rows)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("materialize: rows must be a JSON array")
	}

	plan := planFields(typ, selector)
	out := make([]T, 0, len(parsed.Array()))
	var err error
	i := 0
	parsed.ForEach(func(_, row gjson.Result) bool {
		var v T
		if err = fill(reflect.ValueOf(&v).Elem(), plan, row, i); err != nil {
			return false
		}
		out = append(out, v)
		i++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fieldPlan is one target field and the row keys tried for it, in order.
type fieldPlan struct {
	index int
	name  string
	keys  []string
}

func planFields(typ reflect.Type, selector *expr.Lambda) []fieldPlan {
	var members []expr.Binding
	if selector != nil {
		if rec, ok := selector.Body.(*expr.New); ok {
			members = rec.Members
		}
	}

	var plan []fieldPlan
	pos := 0
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}

		p := fieldPlan{index: i, name: name, keys: []string{name}}
		if pos < len(members) {
			m := members[pos]
			if m.Name != "" && m.Name != name {
				p.keys = append(p.keys, m.Name)
			}
			if ref, ok := referenceName(m.Value); ok {
				p.keys = append(p.keys, ref)
			}
		}
		plan = append(plan, p)
		pos++
	}
	return plan
}

// referenceName returns Parent for a member chain ending in Parent.Id.
func referenceName(e expr.Expr) (string, bool) {
	m, ok := e.(*expr.Member)
	if !ok || m.Name != ReferenceKey {
		return "", false
	}
	parent, ok := m.Target.(*expr.Member)
	if !ok {
		return "", false
	}
	return parent.Name, true
}

func fill(dst reflect.Value, plan []fieldPlan, row gjson.Result, rowIndex int) error {
	for _, p := range plan {
		var val gjson.Result
		for _, k := range p.keys {
			if val = row.Get(gjson.Escape(k)); val.Exists() {
				break
			}
		}
		if !val.Exists() || val.Type == gjson.Null {
			continue
		}
		if err := assign(dst.Field(p.index), val); err != nil {
			return &CoercionError{Row: rowIndex, Field: p.name, Type: dst.Field(p.index).Type(), Raw: val.Raw, Err: err}
		}
	}
	return nil
}

// assign coerces val into dst. Only numeric targets report failures; other
// targets keep their zero value when val does not fit.
func assign(dst reflect.Value, val gjson.Result) error {
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), val); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	switch dst.Type() {
	case decimalType:
		text := val.String()
		if val.Type == gjson.Number {
			text = val.Raw
		}
		d, err := decimal.NewFromString(text)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(d))
		return nil
	case timeType:
		if t, err := cast.ToTimeE(val.String()); err == nil {
			dst.Set(reflect.ValueOf(t.UTC()))
		}
		return nil
	case uuidType:
		if id, err := uuid.Parse(val.String()); err == nil {
			dst.Set(reflect.ValueOf(id))
		}
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(val.String())
	case reflect.Bool:
		if v, err := cast.ToBoolE(scalar(val)); err == nil {
			dst.SetBool(v)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(scalar(val))
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(scalar(val))
		if err != nil {
			return err
		}
		if dst.OverflowUint(n) {
			return fmt.Errorf("%d overflows %s", n, dst.Type())
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(scalar(val))
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	default:
		// Composite values arrive as nested JSON, or as JSON text when the
		// database returns documents as strings.
		raw := val.Raw
		if val.Type == gjson.String {
			raw = val.String()
		}
		ptr := reflect.New(dst.Type())
		if err := json.Unmarshal([]byte(raw), ptr.Interface()); err == nil {
			dst.Set(ptr.Elem())
		}
	}
	return nil
}

// scalar returns val in the form cast understands. Integral numbers keep
// full int64 precision.
func scalar(val gjson.Result) any {
	switch val.Type {
	case gjson.Number:
		if !strings.ContainsAny(val.Raw, ".eE") {
			return val.Int()
		}
		return val.Float()
	case gjson.True, gjson.False:
		return val.Bool()
	}
	return val.String()
}
