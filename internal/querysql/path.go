package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/schema"
)

// step is one move into a JSON document: an object key or an array index.
type step struct {
	key     string
	index   int
	isIndex bool
}

// location is a property path resolved against an entity kind.
//
// For element paths (Skills[].Name) steps lead to the array and elem leads
// from one element to the value.
type location struct {
	steps []step
	each  bool
	elem  []step
	typ   *schema.Type
	// array is the type of the iterated array when each is set.
	array *schema.Type
}

// segment is one lexical piece of a property path.
type segment struct {
	name    string
	key     string
	bracket bool
}

func parsePath(path string) ([]segment, error) {
	var segs []segment
	for i := 0; i < len(path); {
		switch path[i] {
		case '.':
			i++
		case '[':
			j := closeBracket(path, i)
			if j < 0 {
				return nil, fmt.Errorf("unterminated indexer in %q", path)
			}
			segs = append(segs, segment{key: path[i+1 : j], bracket: true})
			i = j + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segs = append(segs, segment{name: path[i:j]})
			i = j
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty property path")
	}
	return segs, nil
}

// closeBracket returns the position of the ']' ending the indexer opened at
// path[open], or -1. Composite keys are canonical JSON, so brackets and
// braces nest and string literals are skipped. A ']' inside a plain key ends
// the indexer only when followed by '.', '[' or the end of the path.
func closeBracket(path string, open int) int {
	composite := open+1 < len(path) && (path[open+1] == '[' || path[open+1] == '{')
	depth := 0
	for i := open + 1; i < len(path); i++ {
		c := path[i]
		switch {
		case composite && c == '"':
			for i++; i < len(path) && path[i] != '"'; i++ {
				if path[i] == '\\' {
					i++
				}
			}
		case composite && (c == '[' || c == '{'):
			depth++
		case composite && c == '}':
			depth--
		case c == ']' && depth > 0:
			depth--
		case c == ']':
			if next := i + 1; next == len(path) || path[next] == '.' || path[next] == '[' {
				return i
			}
		}
	}
	return -1
}

// locate walks path through the property types of kind.
func locate(kind *schema.EntityKind, path string) (location, error) {
	segs, err := parsePath(path)
	if err != nil {
		return location{}, err
	}

	var loc location
	t := kind.PropsType()
	cur := &loc.steps
	for _, s := range segs {
		switch {
		case !s.bracket:
			if !t.Is(schema.KindObject) {
				return location{}, fmt.Errorf("%s: %s has no member %s", path, t, s.name)
			}
			ft, ok := t.Lookup(s.name)
			if !ok {
				return location{}, fmt.Errorf("%s: unknown property %s", path, s.name)
			}
			*cur = append(*cur, step{key: s.name})
			t = ft
		case s.key == "":
			if loc.each {
				return location{}, fmt.Errorf("%s: nested element paths are not supported", path)
			}
			if !t.Is(schema.KindArray) {
				return location{}, fmt.Errorf("%s: %s is not an array", path, t)
			}
			loc.each = true
			loc.array = t
			cur = &loc.elem
			t = t.Elem
		case t.Is(schema.KindArray):
			n, err := strconv.Atoi(s.key)
			if err != nil || n < 0 {
				return location{}, fmt.Errorf("%s: bad array position %q", path, s.key)
			}
			*cur = append(*cur, step{index: n, isIndex: true})
			t = t.Elem
		case t.Is(schema.KindDictionary):
			*cur = append(*cur, step{key: s.key})
			t = t.Elem
		default:
			return location{}, fmt.Errorf("%s: %s cannot be indexed", path, t)
		}
	}
	loc.typ = t
	return loc, nil
}

// splitContainsKey recognizes the dictionary key test path.
func splitContainsKey(path string) (string, bool) {
	return strings.CutSuffix(path, "."+filter.ContainsKeyMarker)
}

// baseColumns maps envelope fields onto objects columns.
var baseColumns = map[string]string{
	"Id":         "id",
	"ParentId":   "parent_id",
	"OwnerId":    "owner_id",
	"Name":       "name",
	"Note":       "note",
	"DateCreate": "date_create",
	"DateModify": "date_modify",
}

func baseColumn(field string) (string, *schema.Type, error) {
	col, ok := baseColumns[field]
	if !ok {
		return "", nil, fmt.Errorf("unknown base field %s", field)
	}
	t, _ := schema.BaseField(field)
	return col, t, nil
}

// sqliteJSONPath renders steps as a SQLite JSON path: $.Address."k"[0].
func sqliteJSONPath(steps []step) string {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range steps {
		if s.isIndex {
			b.WriteString("[" + strconv.Itoa(s.index) + "]")
			continue
		}
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(s.key, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// postgresTextPath renders steps as a text[] literal for #> and #>>.
func postgresTextPath(steps []step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		v := s.key
		if s.isIndex {
			v = strconv.Itoa(s.index)
		}
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		parts[i] = `"` + v + `"`
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
