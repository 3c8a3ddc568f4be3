package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/querysql"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/testutil"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clock := testutil.NewDeterministicClock()
	return New(db, querysql.Postgres, WithClock(clock.Now), WithLogger(quietLogger())), mock
}

func olderThan(age int64) filter.Expression {
	return filter.Comparison{
		Property: filter.PropertyInfo{Path: "Age", Type: schema.Int},
		Operator: filter.GreaterThan,
		Value:    age,
	}
}

func TestPostgres_FilteredSearch(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(append(append([]string{}, querysql.Envelope...), querysql.PropsColumn)).
		AddRow(int64(1), nil, int64(7), "Ann", "", created, created, []byte(`{"Age": 34, "Tags": ["vip"]}`))
	mock.ExpectQuery(`SELECT .* FROM "objects" AS "o" WHERE .*\("o"\."props" #>> '\{"Age"\}'\)::bigint > \$2.* ORDER BY "o"\."id" ASC`).
		WithArgs("Employees", int64(30)).
		WillReturnRows(rows)

	data, err := s.FilteredSearch(context.Background(), Query{Kind: emp, Where: olderThan(30)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"Id": 1, "ParentId": null, "OwnerId": 7, "Name": "Ann", "Note": "",
		"DateCreate": "2024-01-01T00:00:00.000000000Z",
		"DateModify": "2024-01-01T00:00:00.000000000Z",
		"Props": {"Age": 34, "Tags": ["vip"]}
	}]`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GroupedAggregateKeepsNumerics(t *testing.T) {
	s, mock := newMockStore(t)

	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("Department").OfType("TEXT", ""),
		sqlmock.NewColumn("Payroll").OfType("NUMERIC", ""),
	).
		AddRow([]byte("Eng"), []byte("2100.50")).
		AddRow([]byte("Ops"), []byte("NaN"))
	mock.ExpectQuery(`SUM\(\("o"\."props" #>> '\{"Salary"\}'\)::numeric\) AS "Payroll" .* GROUP BY`).
		WithArgs("Employees").
		WillReturnRows(rows)

	q := Query{
		Kind: emp,
		Keys: []grouping.GroupFieldRequest{{FieldPath: "Department", Alias: "Department", Type: schema.String}},
		Aggregates: []grouping.AggregateRequest{
			{FieldPath: "Salary", Function: grouping.Sum, Alias: "Payroll", Type: schema.Decimal},
		},
	}
	data, err := s.GroupedAggregate(context.Background(), q)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Department":"Eng","Payroll":2100.50},{"Department":"Ops","Payroll":"NaN"}]`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountGroups(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS "Count" FROM \(SELECT .* GROUP BY .*\) AS "groups"`).
		WithArgs("Employees", int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"Count"}).AddRow(int64(3)))

	n, err := s.CountGroups(context.Background(), Query{
		Kind:  emp,
		Where: olderThan(30),
		Keys:  []grouping.GroupFieldRequest{{FieldPath: "Department", Alias: "Department", Type: schema.String}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset"))

	_, err := s.FilteredSearch(context.Background(), Query{Kind: emp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search Employees")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgres_InsertReturnsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "objects" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.Insert(context.Background(), emp, Entity{Name: "Ann", Props: map[string]any{"Age": 34}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertAllRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "objects"`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO "objects"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.InsertAll(context.Background(), emp, []Entity{{Name: "a"}, {Name: "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
