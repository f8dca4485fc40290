package executor

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/rewrite"
	"github.com/pg-sharding/shardsql/router/statistics"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxParallelism = 16

type Engine struct {
	driver         Driver
	keys           KeyGenerator
	maxParallelism int
}

func NewEngine(driver Driver, keys KeyGenerator, maxParallelism int) *Engine {
	if maxParallelism <= 0 {
		maxParallelism = DefaultMaxParallelism
	}
	return &Engine{
		driver:         driver,
		keys:           keys,
		maxParallelism: maxParallelism,
	}
}

// Execute dispatches every unit concurrently and returns one Result per
// unit, in unit order. A failing unit does not cancel its siblings: it is
// reported as *ErrorResult and the statement-level decision is left to the
// merger. The returned error is set only if nothing could be dispatched.
func (e *Engine) Execute(ctx context.Context, kind stmtctx.Kind, units []rewrite.SQLUnit) ([]Result, error) {
	units, err := e.resolveGeneratedKeys(ctx, units)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(units))

	var g errgroup.Group
	g.SetLimit(e.maxParallelism)
	for i, u := range units {
		g.Go(func() error {
			results[i] = e.executeUnit(ctx, kind, u)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (e *Engine) executeUnit(ctx context.Context, kind stmtctx.Kind, u rewrite.SQLUnit) Result {
	span, ctx := opentracing.StartSpanFromContext(ctx, "execute unit")
	defer span.Finish()
	span.SetTag("data_source", u.DataSource)
	ext.DBStatement.Set(span, u.SQL)

	started := time.Now()
	var res Result
	var err error
	if usesRows(kind) {
		var rows RowStream
		if rows, err = e.driver.Query(ctx, u); err == nil {
			res = &RowStreamResult{DataSource: u.DataSource, Rows: rows}
		}
	} else {
		var n int64
		if n, err = e.driver.Exec(ctx, u); err == nil {
			res = &UpdateCountResult{DataSource: u.DataSource, Count: n}
		}
	}
	statistics.RecordUnit(u.DataSource, time.Since(started), err)

	if err != nil {
		ext.Error.Set(span, true)
		shlog.Zero.Debug().
			Str("data-source", u.DataSource).
			Err(err).
			Msg("unit failed")
		return &ErrorResult{DataSource: u.DataSource, Err: err}
	}

	shlog.Zero.Debug().
		Str("data-source", u.DataSource).
		Dur("duration", time.Since(started)).
		Msg("unit executed")
	return res
}

// resolveGeneratedKeys replaces every generated key marker with a value.
// A marker names one inserted row, so a row copied to several data sources
// (broadcast tables) gets the same key everywhere.
func (e *Engine) resolveGeneratedKeys(ctx context.Context, units []rewrite.SQLUnit) ([]rewrite.SQLUnit, error) {
	keys := map[stmtctx.GeneratedKeyRef]any{}
	var res []rewrite.SQLUnit

	for i, u := range units {
		var params []any
		for j, p := range u.Params {
			ref, ok := p.(stmtctx.GeneratedKeyRef)
			if !ok {
				continue
			}
			if e.keys == nil {
				return nil, sherror.New(sherror.SH_CONFIGURATION, "no key generator for %s.%s", ref.Table, ref.Column)
			}
			v, ok := keys[ref]
			if !ok {
				var err error
				if v, err = e.keys.NextKey(ctx, ref.Table, ref.Column); err != nil {
					return nil, sherror.Wrap(sherror.SH_UNEXPECTED, err)
				}
				keys[ref] = v
			}
			if params == nil {
				params = append([]any(nil), u.Params...)
			}
			params[j] = v
		}

		if params != nil {
			if res == nil {
				res = append([]rewrite.SQLUnit(nil), units...)
			}
			res[i].Params = params
		}
	}
	if res == nil {
		return units, nil
	}
	return res, nil
}
