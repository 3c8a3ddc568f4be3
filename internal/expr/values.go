package expr

import (
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/eavq/internal/schema"
)

// StringComparison selects how string predicates match.
type StringComparison int

const (
	Ordinal StringComparison = iota
	OrdinalIgnoreCase
	CurrentCulture
	CurrentCultureIgnoreCase
	InvariantCulture
	InvariantCultureIgnoreCase
)

// IgnoreCase reports whether the mode is case-insensitive.
func (m StringComparison) IgnoreCase() bool {
	return m == OrdinalIgnoreCase || m == CurrentCultureIgnoreCase || m == InvariantCultureIgnoreCase
}

func (m StringComparison) String() string {
	switch m {
	case Ordinal:
		return "Ordinal"
	case OrdinalIgnoreCase:
		return "OrdinalIgnoreCase"
	case CurrentCulture:
		return "CurrentCulture"
	case CurrentCultureIgnoreCase:
		return "CurrentCultureIgnoreCase"
	case InvariantCulture:
		return "InvariantCulture"
	case InvariantCultureIgnoreCase:
		return "InvariantCultureIgnoreCase"
	}
	return "StringComparison(?)"
}

// Referencer is implemented by values that name an entry of a foreign
// dictionary. Predicates compare such values by surrogate id.
type Referencer interface {
	RefID() int64
}

// ListItem is an entry of a shared reference dictionary.
type ListItem struct {
	ID    int64
	Value string
}

// RefID implements Referencer.
func (l ListItem) RefID() int64 { return l.ID }

// Enum is a symbolic enum constant for callers without a Go enum type.
type Enum struct {
	Type string
	Name string
}

func (e Enum) String() string { return e.Name }

var (
	timeType     = reflect.TypeOf(time.Time{})
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	referType    = reflect.TypeOf((*Referencer)(nil)).Elem()
	enumType     = reflect.TypeOf(Enum{})
	modeType     = reflect.TypeOf(StringComparison(0))
	listItemType = reflect.TypeOf(ListItem{})
)

// TypeOfValue infers the declared type of a Go value. It returns nil for
// nil and for values with no property-bag counterpart.
func TypeOfValue(v any) *schema.Type {
	if v == nil {
		return nil
	}
	return typeOf(reflect.TypeOf(v), v)
}

func typeOf(t reflect.Type, v any) *schema.Type {
	switch t {
	case timeType:
		return schema.DateTime
	case decimalType:
		return schema.Decimal
	case uuidType:
		return schema.Guid
	case modeType:
		return nil
	case listItemType:
		return schema.RefTo("")
	case enumType:
		if e, ok := v.(Enum); ok {
			return schema.EnumOf(e.Type)
		}
		return schema.EnumOf("")
	}
	if t.Implements(referType) {
		return schema.RefTo("")
	}

	switch t.Kind() {
	case reflect.String:
		return schema.String
	case reflect.Bool:
		return schema.Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return schema.Int
	case reflect.Float32, reflect.Float64:
		return schema.Float
	case reflect.Slice, reflect.Array:
		elem := typeOf(t.Elem(), nil)
		if elem == nil {
			return nil
		}
		return schema.ArrayOf(elem)
	case reflect.Pointer:
		return typeOf(t.Elem(), nil)
	}
	return nil
}
