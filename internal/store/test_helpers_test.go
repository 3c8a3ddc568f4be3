package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/predicate"
	"github.com/roach88/eavq/internal/testutil"
	"github.com/roach88/eavq/internal/window"
)

var (
	emp = testutil.Employee()
	b   = expr.Props(emp)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore creates a new SQLite store in a temp dir with a
// deterministic clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewDeterministicClock()
	s, err := Open(path, WithClock(clock.Now), WithLogger(quietLogger()))
	require.NoError(t, err, "Open()")
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

// staff is the employee fixture: ids 1..5 in order.
func staff() []Entity {
	return []Entity{
		{Name: "Ann", Props: map[string]any{
			"Name": "Ann", "Age": 34, "Salary": decimal.RequireFromString("1200.50"),
			"Department": "Eng", "Active": true, "HiredAt": date(2020, 1, 2),
			"Tags":    []string{"vip", "remote"},
			"Skills":  []any{map[string]any{"Name": "go", "Level": 3}, map[string]any{"Name": "sql", "Level": 2}},
			"Scores":  map[string]any{"math": 5},
			"Address": map[string]any{"City": "Oslo"},
		}},
		{Name: "Bob", Props: map[string]any{
			"Name": "Bob", "Age": 28, "Salary": decimal.NewFromInt(900),
			"Department": "Eng", "Active": true, "HiredAt": date(2022, 5, 1),
			"Tags":    []string{"remote"},
			"Skills":  []any{map[string]any{"Name": "go", "Level": 1}},
			"Address": map[string]any{"City": "Bergen"},
		}},
		{Name: "Cid", Props: map[string]any{
			"Name": "Cid", "Age": 45, "Salary": decimal.NewFromInt(2000),
			"Department": "Ops", "Active": false, "HiredAt": date(2019, 3, 4),
			"Tags":    []string{},
			"Skills":  []any{map[string]any{"Name": "sql", "Level": 4}},
			"Address": map[string]any{"City": "Oslo"},
		}},
		{Name: "Dee", Props: map[string]any{
			"Name": "Dee", "Age": 51, "Salary": decimal.NewFromInt(1500),
			"Department": "Ops", "Active": true,
			"Tags": []string{"vip"},
		}},
		{Name: "Eve", Props: map[string]any{
			"Name": "Eve", "Age": 23, "Salary": decimal.NewFromInt(700),
			"Department": "Sales", "Active": true,
		}},
	}
}

func seedStaff(t *testing.T, s *Store) []int64 {
	t.Helper()
	ids, err := s.InsertAll(context.Background(), emp, staff())
	require.NoError(t, err, "InsertAll()")
	return ids
}

func predicates() *predicate.Compiler {
	return predicate.New(pathres.New(pathres.DefaultPolicy()))
}

func groupings() *grouping.Compiler {
	return grouping.New(pathres.New(pathres.DefaultPolicy()))
}

func windows() *window.Compiler {
	return window.New(groupings())
}
