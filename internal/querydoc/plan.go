package querydoc

import (
	"bytes"
	"encoding/json"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/store"
	"github.com/roach88/eavq/internal/window"
)

// Plan is a compiled query document.
type Plan struct {
	Name       string
	Kind       *schema.EntityKind
	Where      filter.Expression
	Keys       []grouping.GroupFieldRequest
	Aggregates []grouping.AggregateRequest
	Partition  []window.FieldRequest
	Order      []window.OrderRequest
	Functions  []window.FuncRequest
}

// Query is the store request of the plan.
func (p *Plan) Query() store.Query {
	return store.Query{
		Kind:       p.Kind,
		Where:      p.Where,
		Keys:       p.Keys,
		Aggregates: p.Aggregates,
		Partition:  p.Partition,
		Order:      p.Order,
		Functions:  p.Functions,
	}
}

// Op is the boundary operation the plan runs as.
func (p *Plan) Op() store.Op { return p.Query().Op() }

// Document renders the compiled descriptors as plain maps. Empty sections
// are omitted.
func (p *Plan) Document() (map[string]any, error) {
	doc := map[string]any{
		"kind": p.Kind.Name,
		"op":   p.Op().String(),
	}
	if p.Name != "" {
		doc["name"] = p.Name
	}
	if p.Where != nil {
		where, err := filter.Document(p.Where)
		if err != nil {
			return nil, err
		}
		doc["where"] = where
	}
	if len(p.Keys) > 0 {
		keys := make([]any, len(p.Keys))
		for i, k := range p.Keys {
			d := map[string]any{"alias": k.Alias, "path": k.FieldPath, "type": k.Type.String()}
			if k.IsBaseField {
				d["base"] = true
			}
			keys[i] = d
		}
		doc["keys"] = keys
	}
	if len(p.Aggregates) > 0 {
		aggs := make([]any, len(p.Aggregates))
		for i, a := range p.Aggregates {
			d := map[string]any{"alias": a.Alias, "function": a.Function.String(), "path": a.FieldPath}
			if a.IsBaseField {
				d["base"] = true
			}
			if a.Type != nil {
				d["type"] = a.Type.String()
			}
			aggs[i] = d
		}
		doc["aggregates"] = aggs
	}
	if len(p.Partition) > 0 {
		parts := make([]any, len(p.Partition))
		for i, f := range p.Partition {
			parts[i] = refDoc(f.Ref)
		}
		doc["partition"] = parts
	}
	if len(p.Order) > 0 {
		orders := make([]any, len(p.Order))
		for i, o := range p.Order {
			d := refDoc(o.Ref)
			d["desc"] = o.Descending
			orders[i] = d
		}
		doc["order"] = orders
	}
	if len(p.Functions) > 0 {
		fns := make([]any, len(p.Functions))
		for i, f := range p.Functions {
			d := refDoc(f.Ref)
			d["alias"] = f.Alias
			d["function"] = f.Function.String()
			if f.Argument != 0 {
				d["argument"] = f.Argument
			}
			fns[i] = d
		}
		doc["functions"] = fns
	}
	return doc, nil
}

func refDoc(r window.Ref) map[string]any {
	d := map[string]any{}
	if r.FieldPath != "" {
		d["path"] = r.FieldPath
	}
	if r.IsBaseField {
		d["base"] = true
	}
	if r.IsAggregate {
		d["aggregate"] = true
	}
	if r.Type != nil {
		d["type"] = r.Type.String()
	}
	return d
}

// JSON renders Document as indented canonical JSON ending in a newline.
func (p *Plan) JSON() ([]byte, error) {
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}
	data, err := canon.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
