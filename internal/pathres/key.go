package pathres

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/schema"
)

// SerializeKey renders a dictionary key for a storage path.
//
// Primitive keys stringify directly: strings as-is, numbers in their
// shortest form, GUIDs in canonical hyphenated form, date-times as RFC 3339
// in UTC, enums by symbolic name. Composite keys (structs, slices, maps)
// encode as canonical JSON so equal keys always produce the same segment.
//
// keyType, when known, lets an integer key of an enum-keyed dictionary
// resolve to its symbolic name.
func SerializeKey(key any, keyType *schema.Type) (string, error) {
	switch k := key.(type) {
	case nil:
		return "", fmt.Errorf("dictionary key is nil")
	case string:
		return k, nil
	case bool:
		return strconv.FormatBool(k), nil
	case uuid.UUID:
		return k.String(), nil
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano), nil
	case decimal.Decimal:
		return k.String(), nil
	case expr.Enum:
		return k.Name, nil
	case expr.Referencer:
		return strconv.FormatInt(k.RefID(), 10), nil
	}

	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if name, ok := enumName(rv.Int(), key, keyType); ok {
			return name, nil
		}
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return canon.FormatFloat(rv.Float()), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map, reflect.Pointer:
		b, err := canon.Marshal(key)
		if err != nil {
			return "", fmt.Errorf("dictionary key %v: %w", key, err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unsupported dictionary key type %T", key)
}

// enumName resolves an integer enum key. Go enum types with a String method
// name themselves; bare integers use the declared ordinal.
func enumName(ordinal int64, key any, keyType *schema.Type) (string, bool) {
	if s, ok := key.(fmt.Stringer); ok && keyType.Is(schema.KindEnum) {
		return s.String(), true
	}
	if keyType.Is(schema.KindEnum) && ordinal >= 0 && ordinal < int64(len(keyType.EnumValues)) {
		return keyType.EnumValues[ordinal], true
	}
	return "", false
}
