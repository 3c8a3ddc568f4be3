package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/window"
)

// windowScope resolves window entries against the columns of the grouped
// subquery.
type windowScope struct {
	keys []grouping.GroupFieldRequest
}

func (w windowScope) isKey(alias string) bool {
	for _, k := range w.keys {
		if k.Alias == alias {
			return true
		}
	}
	return false
}

// ref maps a window reference onto a grouped column: aggregates by their
// synthesized name, fields through the grouping key with the same path.
func (w windowScope) ref(r window.Ref) (exp.IdentifierExpression, error) {
	if r.IsAggregate {
		return goqu.I(groupedAlias + "." + r.FieldPath), nil
	}
	for _, k := range w.keys {
		if k.FieldPath == r.FieldPath && k.IsBaseField == r.IsBaseField {
			return goqu.I(groupedAlias + "." + k.Alias), nil
		}
	}
	return nil, fmt.Errorf("window field %s is not a grouping key", r.FieldPath)
}

// over renders the body of an OVER clause with '?' slots for columns.
func (w windowScope) over(partition []window.FieldRequest, order []window.OrderRequest) (string, []any, error) {
	var parts []string
	var args []any

	if len(partition) > 0 {
		slots := make([]string, len(partition))
		for i, p := range partition {
			col, err := w.ref(p.Ref)
			if err != nil {
				return "", nil, err
			}
			slots[i] = "?"
			args = append(args, col)
		}
		parts = append(parts, "PARTITION BY "+strings.Join(slots, ", "))
	}

	if len(order) > 0 {
		slots := make([]string, len(order))
		for i, o := range order {
			col, err := w.ref(o.Ref)
			if err != nil {
				return "", nil, err
			}
			slots[i] = "?"
			if o.Descending {
				slots[i] += " DESC"
			}
			args = append(args, col)
		}
		parts = append(parts, "ORDER BY "+strings.Join(slots, ", "))
	}
	return strings.Join(parts, " "), args, nil
}

var windowCalls = map[window.Function]string{
	window.RowNumber:  "ROW_NUMBER()",
	window.Rank:       "RANK()",
	window.DenseRank:  "DENSE_RANK()",
	window.FirstValue: "FIRST_VALUE(?)",
	window.LastValue:  "LAST_VALUE(?)",
	window.Sum:        "SUM(?)",
	window.Average:    "AVG(?)",
	window.Min:        "MIN(?)",
	window.Max:        "MAX(?)",
	window.Count:      "COUNT(?)",
}

// call renders the function part of a window column.
func (w windowScope) call(f window.FuncRequest) (string, []any, error) {
	switch {
	case f.Function == window.Ntile:
		return "NTILE(" + strconv.Itoa(f.Argument) + ")", nil, nil
	case f.Function == window.Count && f.FieldPath == grouping.CountAll:
		return "COUNT(*)", nil, nil
	case f.Function.Ranking():
		return windowCalls[f.Function], nil, nil
	}

	col, err := w.ref(f.Ref)
	if err != nil {
		return "", nil, err
	}
	if f.Function.Offset() {
		name := "LAG"
		if f.Function == window.Lead {
			name = "LEAD"
		}
		return name + "(?, " + strconv.Itoa(f.Argument) + ")", []any{col}, nil
	}
	tmpl, ok := windowCalls[f.Function]
	if !ok {
		return "", nil, fmt.Errorf("unsupported window function %s", f.Function)
	}
	return tmpl, []any{col}, nil
}

// frameSpec widens the frame of FirstValue and LastValue to the whole
// partition.
func frameSpec(afterClause bool) string {
	frame := "ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING"
	if afterClause {
		return " " + frame
	}
	return frame
}
