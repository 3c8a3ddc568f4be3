package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TimeLayout is the stored form of date-time values in SQLite. Fixed-width
// UTC text sorts in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Dialect names a supported database.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts the goqu and database/sql driver names.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite3", "sqlite", "":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown dialect %q", s)
}

// flavor is the dialect-specific half of SQL generation.
type flavor interface {
	// extract reads the scalar at steps inside the JSON column col.
	extract(col exp.Expression, steps []step) exp.Expression
	// typed casts a scalar read from JSON to its declared type.
	typed(e exp.Expression, t *schema.Type) exp.Expression
	// each is a table expression yielding one row per element of the
	// array at steps, aliased as alias with a value column.
	each(col exp.Expression, steps []step, alias string) exp.Expression
	// element reads the scalar at steps inside the element row alias.
	element(alias string, steps []step) exp.Expression
	arrayContains(col exp.Expression, steps []step, v any) exp.Expression
	containsKey(col exp.Expression, steps []step, key string) exp.Expression
	arrayLength(col exp.Expression, steps []step) exp.Expression
	dictCount(col exp.Expression, steps []step) exp.Expression
	contains(x exp.Expression, v any) exp.Expression
	startsWith(x exp.Expression, v any) exp.Expression
	endsWith(x exp.Expression, v any) exp.Expression
	datePart(fn filter.Function, x exp.Expression) exp.Expression
	floor(x exp.Expression) exp.Expression
	ceiling(x exp.Expression) exp.Expression
	// value converts a normalized constant into a driver argument.
	value(v any) any
}

func flavorOf(d Dialect) (flavor, error) {
	switch d {
	case SQLite:
		return sqliteFlavor{}, nil
	case Postgres:
		return postgresFlavor{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", d)
}

type sqliteFlavor struct{}

func (sqliteFlavor) extract(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("json_extract(?, ?)", col, goqu.L(quote(sqliteJSONPath(steps))))
}

func (sqliteFlavor) typed(e exp.Expression, t *schema.Type) exp.Expression {
	if t.Is(schema.KindDecimal) {
		return goqu.L("CAST(? AS REAL)", e)
	}
	return e
}

func (sqliteFlavor) each(col exp.Expression, steps []step, alias string) exp.Expression {
	return goqu.L("json_each(?, ?) AS ?", col, goqu.L(quote(sqliteJSONPath(steps))), goqu.I(alias))
}

func (f sqliteFlavor) element(alias string, steps []step) exp.Expression {
	if len(steps) == 0 {
		return goqu.I(alias + ".value")
	}
	return f.extract(goqu.I(alias+".value"), steps)
}

func (f sqliteFlavor) arrayContains(col exp.Expression, steps []step, v any) exp.Expression {
	return goqu.L("EXISTS (SELECT 1 FROM ? WHERE ? = ?)", f.each(col, steps, "e"), goqu.I("e.value"), f.value(v))
}

func (sqliteFlavor) containsKey(col exp.Expression, steps []step, key string) exp.Expression {
	path := append(append([]step(nil), steps...), step{key: key})
	return goqu.L("json_type(?, ?) IS NOT NULL", col, goqu.L(quote(sqliteJSONPath(path))))
}

func (sqliteFlavor) arrayLength(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("json_array_length(?, ?)", col, goqu.L(quote(sqliteJSONPath(steps))))
}

func (f sqliteFlavor) dictCount(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("(SELECT COUNT(*) FROM ?)", f.each(col, steps, "e"))
}

func (sqliteFlavor) contains(x exp.Expression, v any) exp.Expression {
	return goqu.L("instr(?, ?) > 0", x, v)
}

func (sqliteFlavor) startsWith(x exp.Expression, v any) exp.Expression {
	return goqu.L("substr(?, 1, length(?)) = ?", x, v, v)
}

func (sqliteFlavor) endsWith(x exp.Expression, v any) exp.Expression {
	return goqu.L("substr(?, -length(?)) = ?", x, v, v)
}

var sqliteDateParts = map[filter.Function]string{
	filter.FuncYear:   "%Y",
	filter.FuncMonth:  "%m",
	filter.FuncDay:    "%d",
	filter.FuncHour:   "%H",
	filter.FuncMinute: "%M",
	filter.FuncSecond: "%S",
}

func (sqliteFlavor) datePart(fn filter.Function, x exp.Expression) exp.Expression {
	return goqu.L("CAST(strftime(?, ?) AS INTEGER)", goqu.L(quote(sqliteDateParts[fn])), x)
}

// SQLite builds without math functions by default, so floor and ceiling
// adjust the truncating integer cast.
func (sqliteFlavor) floor(x exp.Expression) exp.Expression {
	return goqu.L("(CASE WHEN ? < CAST(? AS INTEGER) THEN CAST(? AS INTEGER) - 1 ELSE CAST(? AS INTEGER) END)", x, x, x, x)
}

func (sqliteFlavor) ceiling(x exp.Expression) exp.Expression {
	return goqu.L("(CASE WHEN ? > CAST(? AS INTEGER) THEN CAST(? AS INTEGER) + 1 ELSE CAST(? AS INTEGER) END)", x, x, x, x)
}

func (sqliteFlavor) value(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(TimeLayout)
	case decimal.Decimal:
		return x.InexactFloat64()
	case uuid.UUID:
		return x.String()
	}
	return v
}

type postgresFlavor struct{}

func (postgresFlavor) extract(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("(? #>> ?)", col, goqu.L(quote(postgresTextPath(steps))))
}

func (postgresFlavor) json(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("(? #> ?)", col, goqu.L(quote(postgresTextPath(steps))))
}

var postgresCasts = map[schema.Kind]string{
	schema.KindInt:       "bigint",
	schema.KindReference: "bigint",
	schema.KindFloat:     "double precision",
	schema.KindDecimal:   "numeric",
	schema.KindBool:      "boolean",
	schema.KindDateTime:  "timestamptz",
}

func (postgresFlavor) typed(e exp.Expression, t *schema.Type) exp.Expression {
	if t == nil {
		return e
	}
	if c, ok := postgresCasts[t.Kind]; ok {
		return goqu.L("?::"+c, e)
	}
	return e
}

func (f postgresFlavor) each(col exp.Expression, steps []step, alias string) exp.Expression {
	return goqu.L("LATERAL jsonb_array_elements(?) AS ?(value)", f.json(col, steps), goqu.I(alias))
}

func (postgresFlavor) element(alias string, steps []step) exp.Expression {
	return goqu.L("(? #>> ?)", goqu.I(alias+".value"), goqu.L(quote(postgresTextPath(steps))))
}

func (f postgresFlavor) arrayContains(col exp.Expression, steps []step, v any) exp.Expression {
	doc, err := json.Marshal([]any{f.value(v)})
	if err != nil {
		doc = []byte("[]")
	}
	return goqu.L("? @> ?::jsonb", f.json(col, steps), string(doc))
}

func (f postgresFlavor) containsKey(col exp.Expression, steps []step, key string) exp.Expression {
	return goqu.L("jsonb_exists(?, ?)", f.json(col, steps), key)
}

func (f postgresFlavor) arrayLength(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("jsonb_array_length(?)", f.json(col, steps))
}

func (f postgresFlavor) dictCount(col exp.Expression, steps []step) exp.Expression {
	return goqu.L("(SELECT COUNT(*) FROM jsonb_object_keys(?))", f.json(col, steps))
}

func (postgresFlavor) contains(x exp.Expression, v any) exp.Expression {
	return goqu.L("strpos(?, ?) > 0", x, v)
}

func (postgresFlavor) startsWith(x exp.Expression, v any) exp.Expression {
	return goqu.L("left(?, length(?)) = ?", x, v, v)
}

func (postgresFlavor) endsWith(x exp.Expression, v any) exp.Expression {
	return goqu.L("right(?, length(?)) = ?", x, v, v)
}

var postgresDateParts = map[filter.Function]string{
	filter.FuncYear:   "YEAR",
	filter.FuncMonth:  "MONTH",
	filter.FuncDay:    "DAY",
	filter.FuncHour:   "HOUR",
	filter.FuncMinute: "MINUTE",
	filter.FuncSecond: "SECOND",
}

func (postgresFlavor) datePart(fn filter.Function, x exp.Expression) exp.Expression {
	return goqu.L("EXTRACT("+postgresDateParts[fn]+" FROM ? AT TIME ZONE 'UTC')::int", x)
}

func (postgresFlavor) floor(x exp.Expression) exp.Expression   { return goqu.L("floor(?)", x) }
func (postgresFlavor) ceiling(x exp.Expression) exp.Expression { return goqu.L("ceiling(?)", x) }

func (postgresFlavor) value(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case decimal.Decimal:
		return x.String()
	case uuid.UUID:
		return x.String()
	}
	return v
}
