package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/roach88/eavq/internal/querysql"
	"github.com/roach88/eavq/internal/schema"
)

// Entity is an object to insert. Props is keyed by property name; nested
// business classes are nested maps.
type Entity struct {
	ParentID *int64
	OwnerID  *int64
	Name     string
	Note     string
	Props    map[string]any
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Insert stores one entity of kind and returns its id. DateCreate and
// DateModify are both set from the store clock.
func (s *Store) Insert(ctx context.Context, kind *schema.EntityKind, e Entity) (int64, error) {
	id, err := s.insert(ctx, s.db, kind, e)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", kind.Name, err)
	}
	return id, nil
}

// InsertAll stores entities in one transaction and returns their ids in
// order. Nothing is stored if any insert fails.
func (s *Store) InsertAll(ctx context.Context, kind *schema.EntityKind, entities []Entity) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert %s: begin: %w", kind.Name, err)
	}
	defer tx.Rollback()

	ids := make([]int64, len(entities))
	for i, e := range entities {
		id, err := s.insert(ctx, tx, kind, e)
		if err != nil {
			return nil, fmt.Errorf("insert %s[%d]: %w", kind.Name, i, err)
		}
		ids[i] = id
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insert %s: commit: %w", kind.Name, err)
	}
	return ids, nil
}

func (s *Store) insert(ctx context.Context, ex execer, kind *schema.EntityKind, e Entity) (int64, error) {
	if kind == nil {
		return 0, fmt.Errorf("nil entity kind")
	}
	props := kind.PropsType()
	for name := range e.Props {
		if _, ok := props.Lookup(name); !ok {
			return 0, fmt.Errorf("unknown property %s", name)
		}
	}
	doc, err := marshalProps(e.Props)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	record := goqu.Record{
		"kind":        kind.Name,
		"parent_id":   nullable(e.ParentID),
		"owner_id":    nullable(e.OwnerID),
		"name":        e.Name,
		"note":        e.Note,
		"date_create": s.storedTime(now),
		"date_modify": s.storedTime(now),
		"props":       doc,
	}
	ds := goqu.Dialect(string(s.dialect)).Insert("objects").Rows(record).Prepared(true)

	if s.dialect == querysql.Postgres {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, err
		}
		var id int64
		if err := ex.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// storedTime is the column value of an envelope date in the store's
// dialect.
func (s *Store) storedTime(t time.Time) any {
	if s.dialect == querysql.SQLite {
		return t.UTC().Format(querysql.TimeLayout)
	}
	return t.UTC()
}

func nullable(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
