package filter

import (
	"fmt"

	"github.com/roach88/eavq/internal/canon"
)

// Fingerprint returns a stable hash of a filter tree's structure and
// values. Structurally equal trees share a fingerprint, so it keys caches
// of generated SQL.
//
// Constants are hashed together with their Go type: a time.Time and the
// string it formats to render different SQL arguments, so they must not
// share a fingerprint.
func Fingerprint(e Expression) (string, error) {
	doc, err := Document(e)
	if err != nil {
		return "", err
	}
	return canon.Hash(canon.DomainFilter, typedValues(doc))
}

// typedValues rewrites every constant under a "value" or "values" key as a
// [type, value] pair.
func typedValues(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if k == "value" || k == "values" {
				out[k] = tagged(e)
				continue
			}
			out[k] = typedValues(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = typedValues(e)
		}
		return out
	}
	return v
}

func tagged(v any) any {
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = tagged(e)
		}
		return out
	}
	return []any{fmt.Sprintf("%T", v), v}
}
