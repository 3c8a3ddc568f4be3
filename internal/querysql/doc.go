// Package querysql renders compiled predicates and grouping descriptors as
// SQL over the objects table.
//
// Every entity is one row of objects: the envelope lives in typed columns
// and the property bag in a JSON document (props). A property path maps to
// a JSON path into props, with the declared type deciding how the stored
// value is read:
//
//	sqlite3:   json_extract(o.props, '$.Address.City')
//	postgres:  (o.props #>> '{"Address","City"}')
//	postgres:  (o.props #>> '{"Age"}')::bigint
//
// Paths through array elements (Skills[].Name) become EXISTS subqueries in
// predicates and CROSS JOINs over the array in grouped queries.
//
// Statements are built with goqu. Execution uses prepared statements; the
// interpolated form is only for previews. Every statement ends with ORDER
// BY so results are deterministic.
package querysql
