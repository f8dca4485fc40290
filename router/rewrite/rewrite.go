package rewrite

import (
	"math"
	"strconv"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/hashfunction"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// SQLUnit is the statement text and parameters for one data source.
type SQLUnit struct {
	DataSource string
	SQL        string
	Params     []any
}

type Engine struct {
	ParamStyle config.ParamStyle
}

func NewEngine(style config.ParamStyle) *Engine {
	if style == "" {
		style = config.ParamStyleQuestion
	}
	return &Engine{ParamStyle: style}
}

// Rewrite produces one SQLUnit per route unit, in route order.
func (e *Engine) Rewrite(stmt *stmtctx.Statement, rc *route.Context) ([]SQLUnit, error) {
	base, overrides, err := e.tokens(stmt, rc)
	if err != nil {
		return nil, err
	}

	units := make([]SQLUnit, 0, len(rc.Units))
	for _, u := range rc.Units {
		w := &writer{
			engine:    e,
			stmt:      stmt,
			unit:      u,
			overrides: overrides,
		}
		if err := w.renderStatement(base); err != nil {
			return nil, err
		}
		units = append(units, SQLUnit{
			DataSource: u.DataSource,
			SQL:        w.sb.String(),
			Params:     w.params,
		})
	}

	shlog.Zero.Debug().
		Str("route-type", rc.Type.String()).
		Int("units", len(units)).
		Msg("rewrote statement")
	return units, nil
}

// tokens builds the unit-independent token list and parameter overrides.
func (e *Engine) tokens(stmt *stmtctx.Statement, rc *route.Context) ([]token, map[int]any, error) {
	var toks []token
	overrides := map[int]any{}

	for _, t := range stmt.Tables {
		if t.Start < 0 || t.Stop > len(stmt.SQL) || t.Start > t.Stop {
			return nil, nil, sherror.New(sherror.SH_REWRITE_INTERNAL, "table token %s out of bounds", t.Name)
		}
		toks = append(toks, token{start: t.Start, stop: t.Stop, kind: tokenTable, logical: t.Name})
	}
	for _, p := range stmt.Placeholders {
		if p.Param <= 0 || p.Param > len(stmt.Parameters) {
			return nil, nil, sherror.New(sherror.SH_REWRITE_INTERNAL,
				"placeholder binds parameter %d, %d parameters given", p.Param, len(stmt.Parameters))
		}
		toks = append(toks, token{start: p.Start, stop: p.Stop, kind: tokenPlaceholder, param: p.Param})
	}

	if stmt.Kind == stmtctx.KindSelect && rc.Type != route.Single {
		d := stmtctx.DeriveProjections(stmt)
		if len(d.Derived) > 0 {
			var sb strings.Builder
			for _, p := range d.Derived {
				sb.WriteString(", ")
				sb.WriteString(p.Expression)
				sb.WriteString(" AS ")
				sb.WriteString(p.Alias)
			}
			toks = append(toks, token{start: stmt.ProjectionsStop, stop: stmt.ProjectionsStop, kind: tokenInsert, text: sb.String()})
		}
		if d.OrderByGroupColumns {
			cols := make([]string, 0, len(stmt.GroupBy))
			for _, g := range stmt.GroupBy {
				col := g.Column
				if g.Desc {
					col += " DESC"
				}
				cols = append(cols, col)
			}
			at := max(stmt.GroupByStop, stmt.HavingStop)
			toks = append(toks, token{start: at, stop: at, kind: tokenInsert,
				text: " ORDER BY " + strings.Join(cols, ", ")})
		}

		pt, err := paginationTokens(stmt, overrides)
		if err != nil {
			return nil, nil, err
		}
		toks = append(toks, pt...)
	}

	if stmt.Kind == stmtctx.KindInsert && stmt.GeneratedKey != nil {
		gk := stmt.GeneratedKey
		toks = append(toks, token{start: gk.ColumnsStop, stop: gk.ColumnsStop, kind: tokenInsert, text: ", " + gk.Column})
		for i, row := range stmt.InsertRows {
			toks = append(toks, token{start: row.Stop - 1, stop: row.Stop - 1, kind: tokenGeneratedKey, row: i})
		}
	}

	sortTokens(toks)
	for i := 1; i < len(toks); i++ {
		if toks[i].start < toks[i-1].stop {
			return nil, nil, sherror.New(sherror.SH_REWRITE_INTERNAL,
				"overlapping tokens at offsets %d and %d", toks[i-1].start, toks[i].start)
		}
	}
	return toks, overrides, nil
}

// paginationTokens pushes pagination down: every target returns its first
// offset+count rows and the merger skips the offset. When rows are grouped
// in memory no row may be cut, so the count becomes unlimited.
func paginationTokens(stmt *stmtctx.Statement, overrides map[int]any) ([]token, error) {
	pg := stmt.Pagination
	if pg == nil {
		return nil, nil
	}

	var offset, count int64
	var err error
	if pg.Offset != nil {
		if offset, err = paginationValue(pg.Offset.Value, stmt.Parameters); err != nil {
			return nil, err
		}
	}

	var toks []token
	set := func(pv *stmtctx.PaginationValue, v int64) {
		if pv.Value.IsParam() {
			overrides[pv.Value.Param] = v
			return
		}
		toks = append(toks, token{start: pv.Start, stop: pv.Stop, kind: tokenReplace, text: strconv.FormatInt(v, 10)})
	}

	if pg.Offset != nil {
		set(pg.Offset, 0)
	}
	if pg.RowCount != nil {
		if count, err = paginationValue(pg.RowCount.Value, stmt.Parameters); err != nil {
			return nil, err
		}
		rowCount := offset + count
		if stmt.GroupedInMemory() || rowCount < count {
			rowCount = math.MaxInt64
		}
		set(pg.RowCount, rowCount)
	}
	return toks, nil
}

func paginationValue(v stmtctx.Value, params []any) (int64, error) {
	raw, err := v.Resolve(params)
	if err != nil {
		return 0, sherror.Wrap(sherror.SH_REWRITE_INTERNAL, err)
	}
	n, err := hashfunction.NormalizeValue(raw, hashfunction.ColumnTypeInteger)
	if err != nil {
		return 0, sherror.Wrap(sherror.SH_REWRITE_INTERNAL, err)
	}
	if n.(int64) < 0 {
		return 0, sherror.New(sherror.SH_REWRITE_INTERNAL, "negative pagination value %d", n)
	}
	return n.(int64), nil
}
