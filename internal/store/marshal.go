package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/querysql"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// marshalProps converts a property document to canonical JSON TEXT for
// storage. Date-times are written in querysql.TimeLayout so that stored
// text compares in time order.
func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	data, err := canon.Marshal(storedValue(props))
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}
	return string(data), nil
}

func storedValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(querysql.TimeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(querysql.TimeLayout)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = storedValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = storedValue(e)
		}
		return out
	case []time.Time:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = storedValue(e)
		}
		return out
	}
	return v
}

// jsonColumns are database types whose text is a JSON document.
var jsonColumns = map[string]bool{"JSON": true, "JSONB": true}

// numericColumns are database types returned as exact decimal text.
var numericColumns = map[string]bool{"NUMERIC": true, "DECIMAL": true}

// encodeRows reads every row into a JSON array of flat objects keyed by
// column name. It returns the encoded rows and their count.
func encodeRows(rows *sql.Rows) ([]byte, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, 0, fmt.Errorf("read column types: %w", err)
	}

	out := make([]map[string]any, 0)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = cell(c, strings.ToUpper(types[i].DatabaseTypeName()), vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, 0, fmt.Errorf("encode rows: %w", err)
	}
	return data, len(out), nil
}

// cell converts one scanned value for JSON encoding. Documents are
// embedded as JSON and exact numerics stay numbers.
func cell(col, dbType string, v any) any {
	switch x := v.(type) {
	case []byte:
		return textCell(col, dbType, string(x))
	case string:
		return textCell(col, dbType, x)
	case time.Time:
		return x.UTC().Format(querysql.TimeLayout)
	}
	return v
}

func textCell(col, dbType, s string) any {
	if (col == querysql.PropsColumn || jsonColumns[dbType]) && json.Valid([]byte(s)) {
		return jsoniter.RawMessage(s)
	}
	if numericColumns[dbType] {
		if _, err := decimal.NewFromString(s); err == nil {
			return jsoniter.RawMessage(s)
		}
	}
	return s
}
