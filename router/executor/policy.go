package executor

import (
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// ApplyFailurePolicy decides whether a statement with failed units fails.
// Writes fail if any unit failed. Reads fail too, unless bestEffortReads is
// set and at least one unit succeeded: then failed units are dropped.
// On failure every row stream is closed before returning.
func ApplyFailurePolicy(kind stmtctx.Kind, results []Result, bestEffortReads bool) ([]Result, error) {
	var failed []sherror.TargetError
	ok := make([]Result, 0, len(results))
	for _, r := range results {
		if er, isErr := r.(*ErrorResult); isErr {
			failed = append(failed, sherror.TargetError{DataSource: er.DataSource, Err: er.Err})
			continue
		}
		ok = append(ok, r)
	}
	if len(failed) == 0 {
		return results, nil
	}

	if !kind.IsWrite() && bestEffortReads && len(ok) > 0 {
		for _, f := range failed {
			shlog.Zero.Warn().
				Str("data-source", f.DataSource).
				Err(f.Err).
				Msg("dropping failed unit from best-effort read")
		}
		return ok, nil
	}

	CloseAll(results)
	return nil, sherror.NewExecutionFailure(failed)
}
