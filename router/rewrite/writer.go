package rewrite

import (
	"strconv"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// writer renders the statement for one unit.
type writer struct {
	engine    *Engine
	stmt      *stmtctx.Statement
	unit      *route.Unit
	overrides map[int]any

	sb     strings.Builder
	params []any
}

func (w *writer) renderStatement(toks []token) error {
	rows := w.stmt.InsertRows
	if w.stmt.Kind != stmtctx.KindInsert || len(rows) == 0 {
		return w.render(0, len(w.stmt.SQL), toks)
	}

	// The VALUES list is rendered row by row so that a unit only carries
	// the rows it owns.
	from, to := rows[0].Start, rows[len(rows)-1].Stop
	if err := w.render(0, from, within(toks, 0, from)); err != nil {
		return err
	}
	owned := w.unit.InsertRows
	if owned == nil {
		owned = make([]int, len(rows))
		for i := range rows {
			owned[i] = i
		}
	}
	for n, i := range owned {
		if i < 0 || i >= len(rows) {
			return sherror.New(sherror.SH_REWRITE_INTERNAL, "unit owns unknown insert row %d", i)
		}
		if n > 0 {
			w.sb.WriteString(", ")
		}
		if err := w.render(rows[i].Start, rows[i].Stop, within(toks, rows[i].Start, rows[i].Stop)); err != nil {
			return err
		}
	}
	return w.render(to, len(w.stmt.SQL), within(toks, to, len(w.stmt.SQL)+1))
}

// render writes SQL[from:to] applying toks, which must be sorted and lie
// inside the range.
func (w *writer) render(from, to int, toks []token) error {
	if from < 0 || to > len(w.stmt.SQL) || from > to {
		return sherror.New(sherror.SH_REWRITE_INTERNAL, "text range [%d, %d) out of bounds", from, to)
	}
	pos := from
	for _, t := range toks {
		if t.start < pos || t.stop > to {
			return sherror.New(sherror.SH_REWRITE_INTERNAL, "token at offset %d out of range", t.start)
		}
		w.sb.WriteString(w.stmt.SQL[pos:t.start])
		if err := w.renderToken(t); err != nil {
			return err
		}
		pos = t.stop
	}
	w.sb.WriteString(w.stmt.SQL[pos:to])
	return nil
}

func (w *writer) renderToken(t token) error {
	switch t.kind {
	case tokenTable:
		actual, ok := w.unit.ActualTable(t.logical)
		if !ok {
			return sherror.New(sherror.SH_REWRITE_INTERNAL,
				"no physical table for %s on data source %s", t.logical, w.unit.DataSource)
		}
		w.sb.WriteString(actual)
	case tokenPlaceholder:
		v, ok := w.overrides[t.param]
		if !ok {
			v = w.stmt.Parameters[t.param-1]
		}
		w.placeholder(v)
	case tokenReplace, tokenInsert:
		w.sb.WriteString(t.text)
	case tokenGeneratedKey:
		w.sb.WriteString(", ")
		w.placeholder(stmtctx.GeneratedKeyRef{
			Table:  w.stmt.Tables[0].Name,
			Column: w.stmt.GeneratedKey.Column,
			Row:    t.row,
		})
	default:
		return sherror.New(sherror.SH_REWRITE_INTERNAL, "unknown token kind %d", t.kind)
	}
	return nil
}

func (w *writer) placeholder(v any) {
	w.params = append(w.params, v)
	if w.engine.ParamStyle == config.ParamStyleDollar {
		w.sb.WriteString("$" + strconv.Itoa(len(w.params)))
		return
	}
	w.sb.WriteByte('?')
}
