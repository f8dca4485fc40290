package executor

import (
	"context"

	"github.com/pg-sharding/shardsql/router/rewrite"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// RowStream is a forward-only cursor over the rows of one unit. Close
// must be safe to call more than once.
type RowStream interface {
	Columns() []string
	Next() bool
	Row() []any
	Err() error
	Close() error
}

//go:generate -command mockgen -source=router/executor/executor.go -destination=router/mock/executor/executor_mock.go -package=mock_executor

// Driver runs one rewritten unit on its data source. Connection handling
// and retries are up to the implementation.
type Driver interface {
	Query(ctx context.Context, unit rewrite.SQLUnit) (RowStream, error)
	Exec(ctx context.Context, unit rewrite.SQLUnit) (int64, error)
}

// KeyGenerator produces values for generated key columns.
type KeyGenerator interface {
	NextKey(ctx context.Context, table, column string) (any, error)
}

// Result is the outcome of one unit: *RowStreamResult, *UpdateCountResult
// or *ErrorResult.
type Result interface {
	isResult()
	Source() string
}

type RowStreamResult struct {
	DataSource string
	Rows       RowStream
}

type UpdateCountResult struct {
	DataSource string
	Count      int64
}

type ErrorResult struct {
	DataSource string
	Err        error
}

func (*RowStreamResult) isResult()   {}
func (*UpdateCountResult) isResult() {}
func (*ErrorResult) isResult()       {}

func (r *RowStreamResult) Source() string   { return r.DataSource }
func (r *UpdateCountResult) Source() string { return r.DataSource }
func (r *ErrorResult) Source() string       { return r.DataSource }

// CloseAll releases every row stream among results.
func CloseAll(results []Result) {
	for _, r := range results {
		if rs, ok := r.(*RowStreamResult); ok {
			_ = rs.Rows.Close()
		}
	}
}

// usesRows reports whether statements of this kind return rows.
func usesRows(kind stmtctx.Kind) bool {
	return kind == stmtctx.KindSelect
}
