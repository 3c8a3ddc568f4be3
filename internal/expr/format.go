package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func (p *Param) String() string { return p.Name }

func (m *Member) String() string {
	if m.Target == nil {
		return m.Name
	}
	return m.Target.String() + "." + m.Name
}

func (c *Const) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(c.Value)
}

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

func (u *Unary) String() string {
	if u.Op == OpNot {
		return "!" + u.Operand.String()
	}
	return "-" + u.Operand.String()
}

func (c *Call) String() string {
	var sb strings.Builder
	if c.Target != nil {
		sb.WriteString(c.Target.String())
	} else {
		sb.WriteString(c.Class)
	}
	sb.WriteByte('.')
	sb.WriteString(c.Method)
	sb.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (ix *Index) String() string {
	return ix.Target.String() + "[" + ix.Key.String() + "]"
}

func (l *Lambda) String() string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	head := strings.Join(names, ", ")
	if len(names) != 1 {
		head = "(" + head + ")"
	}
	return head + " => " + l.Body.String()
}

func (n *New) String() string {
	parts := make([]string, len(n.Members))
	for i, m := range n.Members {
		if m.Name == "" {
			parts[i] = m.Value.String()
			continue
		}
		parts[i] = m.Name + " = " + m.Value.String()
	}
	return "new { " + strings.Join(parts, ", ") + " }"
}

// Kind names the node type for error messages.
func Kind(e Expr) string {
	switch e.(type) {
	case *Param:
		return "parameter"
	case *Member:
		return "member access"
	case *Const:
		return "constant"
	case *Binary:
		return "binary expression"
	case *Unary:
		return "unary expression"
	case *Call:
		return "method call"
	case *Index:
		return "indexer"
	case *Lambda:
		return "lambda"
	case *New:
		return "record initializer"
	case nil:
		return "nil"
	}
	return fmt.Sprintf("%T", e)
}

// Describe renders e for error messages: its node kind and text.
func Describe(e Expr) string {
	if e == nil {
		return "nil"
	}
	return Kind(e) + " " + e.String()
}
