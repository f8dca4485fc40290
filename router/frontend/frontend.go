package frontend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/pkg/tupleslot"
	"github.com/pg-sharding/shardsql/router/executor"
	"github.com/pg-sharding/shardsql/router/merge"
	"github.com/pg-sharding/shardsql/router/qrouter"
	"github.com/pg-sharding/shardsql/router/rewrite"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/routingstate"
	"github.com/pg-sharding/shardsql/router/statistics"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// Frontend runs parsed statements through route, rewrite, execute and
// merge. It is safe for concurrent use.
type Frontend struct {
	holder   *routingstate.Holder
	qr       qrouter.QueryRouter
	rewriter *rewrite.Engine
	executor *executor.Engine

	bestEffortReads bool
}

func NewFrontend(holder *routingstate.Holder, qr qrouter.QueryRouter, driver executor.Driver, keys executor.KeyGenerator, cfg config.ExecutorCfg) *Frontend {
	return &Frontend{
		holder:          holder,
		qr:              qr,
		rewriter:        rewrite.NewEngine(cfg.ParamStyle),
		executor:        executor.NewEngine(driver, keys, cfg.MaxParallelism),
		bestEffortReads: cfg.BestEffortReads,
	}
}

// plan routes and rewrites stmt against the current rule set snapshot.
func (f *Frontend) plan(ctx context.Context, stmt *stmtctx.Statement) (*route.Context, []rewrite.SQLUnit, error) {
	snap := f.holder.Snapshot()
	if snap == nil {
		return nil, nil, sherror.New(sherror.SH_CONFIGURATION, "no sharding rules loaded")
	}
	rc, err := f.qr.Route(ctx, stmt, snap.Rules)
	if err != nil {
		return nil, nil, err
	}
	units, err := f.rewriter.Rewrite(stmt, rc)
	if err != nil {
		return nil, nil, err
	}
	return rc, units, nil
}

// Query executes stmt. The caller owns the result and must Close it.
func (f *Frontend) Query(ctx context.Context, stmt *stmtctx.Statement) (*merge.MergedResult, error) {
	id := uuid.New()
	started := time.Now()

	rc, units, err := f.plan(ctx, stmt)
	if err != nil {
		f.logFailure(id, stmt, err)
		return nil, err
	}

	results, err := f.executor.Execute(ctx, stmt.Kind, units)
	if err == nil {
		results, err = executor.ApplyFailurePolicy(stmt.Kind, results, f.bestEffortReads)
	}
	if err != nil {
		f.logFailure(id, stmt, err)
		return nil, err
	}

	res, err := merge.Merge(results, stmt, rc.Type)
	if err != nil {
		f.logFailure(id, stmt, err)
		return nil, err
	}

	d := time.Since(started)
	statistics.RecordStatement(rc.Type.String(), d)
	stmtType := shlog.StmtTypeQuery
	if stmt.Kind.IsWrite() {
		stmtType = shlog.StmtTypeUpdate
	}
	shlog.SLogger.ReportStatement(stmtType, stmt.SQL, len(units), d)

	shlog.Zero.Debug().
		Str("statement-id", id.String()).
		Str("route-type", rc.Type.String()).
		Int("units", len(units)).
		Dur("duration", d).
		Msg("statement dispatched")
	return res, nil
}

// Explain routes and rewrites stmt without running it. One row per unit:
// the route, the rewritten text and its parameters.
func (f *Frontend) Explain(ctx context.Context, stmt *stmtctx.Statement) (*tupleslot.TupleTableSlot, error) {
	started := time.Now()
	rc, units, err := f.plan(ctx, stmt)
	if err != nil {
		return nil, err
	}

	tts := tupleslot.New("route", "sql", "params")
	for i, line := range qrouter.Explain(rc) {
		tts.WriteDataRow(line, units[i].SQL, fmt.Sprint(units[i].Params))
	}
	shlog.SLogger.ReportStatement(shlog.StmtTypeExplain, stmt.SQL, len(units), time.Since(started))
	return tts, nil
}

func (f *Frontend) logFailure(id uuid.UUID, stmt *stmtctx.Statement, err error) {
	shlog.Zero.Error().
		Str("statement-id", id.String()).
		Str("kind", stmt.Kind.String()).
		Err(err).
		Msg("statement failed")
}
