package merge

import (
	"strings"
	"sync"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/executor"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"go.uber.org/multierr"
)

// cursor is one stage of the merge chain.
type cursor interface {
	Next() bool
	Row() []any
	Err() error
}

// source is a unit's row stream that is closed exactly once, either when
// it is exhausted or when the merged result is closed.
type source struct {
	rows  executor.RowStream
	index int

	once     sync.Once
	closeErr error
}

func (s *source) close() error {
	s.once.Do(func() {
		s.closeErr = s.rows.Close()
	})
	return s.closeErr
}

// next advances the stream and releases it as soon as it is drained.
func (s *source) next() (bool, error) {
	if s.rows.Next() {
		return true, nil
	}
	err := s.rows.Err()
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return false, err
}

// MergedResult is the single logical result of a statement: either rows
// or an update count.
type MergedResult struct {
	columns []string
	cur     cursor
	visible int

	rowsAffected int64
	updateCount  bool

	sources []*source
	closed  bool
	row     []any
}

func (m *MergedResult) Columns() []string {
	return m.columns
}

func (m *MergedResult) Next() bool {
	if m.cur == nil || m.closed {
		return false
	}
	if !m.cur.Next() {
		m.row = nil
		return false
	}
	m.row = m.cur.Row()
	if len(m.row) > m.visible {
		m.row = m.row[:m.visible]
	}
	return true
}

func (m *MergedResult) Row() []any {
	return m.row
}

func (m *MergedResult) Err() error {
	if m.cur == nil {
		return nil
	}
	return m.cur.Err()
}

// IsUpdateCount reports whether the statement produced a count, not rows.
func (m *MergedResult) IsUpdateCount() bool {
	return m.updateCount
}

func (m *MergedResult) RowsAffected() int64 {
	return m.rowsAffected
}

// Close releases every source that is still open. It is safe to call
// more than once and after the rows are drained.
func (m *MergedResult) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var err error
	for _, s := range m.sources {
		err = multierr.Append(err, s.close())
	}
	return err
}

// Merge combines unit results into one logical result. Rows of a single
// route are passed through: the data source already applied ordering,
// grouping and pagination.
func Merge(results []executor.Result, stmt *stmtctx.Statement, routeType route.Type) (*MergedResult, error) {
	var rows []*executor.RowStreamResult
	var counts []*executor.UpdateCountResult
	var failed []sherror.TargetError

	for _, r := range results {
		switch rr := r.(type) {
		case *executor.RowStreamResult:
			rows = append(rows, rr)
		case *executor.UpdateCountResult:
			counts = append(counts, rr)
		case *executor.ErrorResult:
			failed = append(failed, sherror.TargetError{DataSource: rr.DataSource, Err: rr.Err})
		}
	}

	switch {
	case len(failed) > 0:
		executor.CloseAll(results)
		return nil, sherror.NewExecutionFailure(failed)
	case len(rows) > 0 && len(counts) > 0:
		executor.CloseAll(results)
		return nil, sherror.New(sherror.SH_MERGE_SEMANTIC, "units returned both rows and update counts")
	case len(rows) == 0:
		return mergeCounts(counts, routeType), nil
	}

	m, err := mergeRows(rows, stmt, routeType)
	if err != nil {
		executor.CloseAll(results)
		return nil, err
	}

	shlog.Zero.Debug().
		Str("route-type", routeType.String()).
		Int("sources", len(rows)).
		Msg("merged results")
	return m, nil
}

func mergeCounts(counts []*executor.UpdateCountResult, routeType route.Type) *MergedResult {
	m := &MergedResult{updateCount: true}
	if routeType == route.Broadcast {
		// every replica applied the same change
		if len(counts) > 0 {
			m.rowsAffected = counts[0].Count
		}
		return m
	}
	for _, c := range counts {
		m.rowsAffected += c.Count
	}
	return m
}

func mergeRows(rows []*executor.RowStreamResult, stmt *stmtctx.Statement, routeType route.Type) (*MergedResult, error) {
	columns := rows[0].Rows.Columns()
	for _, r := range rows[1:] {
		if !sameLabels(columns, r.Rows.Columns()) {
			return nil, sherror.New(sherror.SH_MERGE_SEMANTIC,
				"data source %s returned columns %v, %s returned %v",
				rows[0].DataSource, columns, r.DataSource, r.Rows.Columns())
		}
	}

	sources := make([]*source, len(rows))
	for i, r := range rows {
		sources[i] = &source{rows: r.Rows, index: i}
	}
	m := &MergedResult{
		columns: columns,
		visible: len(columns),
		sources: sources,
	}

	if routeType == route.Single || stmt == nil {
		m.cur = newStreamCursor(sources)
		return m, nil
	}

	d := stmtctx.DeriveProjections(stmt)
	nDerived := len(d.Derived)
	if nDerived > len(columns) {
		return nil, sherror.New(sherror.SH_MERGE_SEMANTIC,
			"result has %d columns, %d derived columns expected", len(columns), nDerived)
	}
	m.visible = len(columns) - nDerived
	m.columns = columns[:m.visible]

	orderKeys, err := resolveKeys(d.OrderBy, columns, nDerived)
	if err != nil {
		return nil, err
	}
	groupKeys, err := resolveKeys(d.GroupBy, columns, nDerived)
	if err != nil {
		return nil, err
	}
	aggs, err := resolveAggregates(d.Aggregates, columns, nDerived)
	if err != nil {
		return nil, err
	}

	var cur cursor
	if len(orderKeys) > 0 && len(sources) > 1 && !stmt.GroupedInMemory() {
		cur = newOrderByCursor(sources, orderKeys)
	} else {
		cur = newStreamCursor(sources)
	}

	switch {
	case stmt.GroupedInMemory():
		cur = newMemoryGroupCursor(cur, groupKeys, orderKeys, aggs)
	case len(groupKeys) > 0:
		cur = newStreamGroupCursor(cur, groupKeys, aggs)
	}

	if stmt.Pagination != nil {
		cur, err = newPaginationCursor(cur, stmt.Pagination, stmt.Parameters)
		if err != nil {
			return nil, err
		}
	}

	m.cur = cur
	return m, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
