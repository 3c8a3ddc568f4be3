// Package store executes compiled queries against a property-bag object
// store.
//
// Every entity lives in the objects table: the envelope columns (id,
// parent_id, owner_id, name, note, date_create, date_modify) plus a JSON
// props document. Two backends are supported:
//   - SQLite (mattn/go-sqlite3) with WAL mode, an embedded schema and
//     user_version migrations
//   - PostgreSQL (lib/pq) with a JSONB props column
//
// SQL text is produced by querysql and cached per query fingerprint. Result
// rows come back as a JSON array of flat objects keyed by column alias,
// ready for materialize.Materialize.
//
// # Deterministic Results
//
// Every statement carries an ORDER BY: search rows by id, grouped rows by
// their key columns, windowed rows by the window order and then the keys.
package store
