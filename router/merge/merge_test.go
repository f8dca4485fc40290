package merge_test

import (
	"errors"
	"testing"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/tupleslot"
	"github.com/pg-sharding/shardsql/router/executor"
	"github.com/pg-sharding/shardsql/router/merge"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slot(cols []string, rows ...[]any) *tupleslot.TupleTableSlot {
	tts := tupleslot.New(cols...)
	for _, r := range rows {
		tts.WriteDataRow(r...)
	}
	return tts
}

func rowResults(slots ...*tupleslot.TupleTableSlot) []executor.Result {
	res := make([]executor.Result, 0, len(slots))
	for i, s := range slots {
		res = append(res, &executor.RowStreamResult{DataSource: "ds_" + string(rune('0'+i)), Rows: s})
	}
	return res
}

func drain(t *testing.T, m *merge.MergedResult) [][]any {
	t.Helper()
	var rows [][]any
	for m.Next() {
		rows = append(rows, append([]any(nil), m.Row()...))
	}
	require.NoError(t, m.Err())
	require.NoError(t, m.Close())
	return rows
}

func TestOrderByMergeIsStable(t *testing.T) {
	cols := []string{"id", "src"}
	stmt := &stmtctx.Statement{
		Kind:        stmtctx.KindSelect,
		SQL:         "SELECT id, src FROM t ORDER BY id",
		Projections: []stmtctx.Projection{{Expression: "id"}, {Expression: "src"}},
		OrderBy:     []stmtctx.OrderItem{{Column: "id"}},
	}

	m, err := merge.Merge(rowResults(
		slot(cols, []any{int64(1), "a0"}, []any{int64(3), "a1"}, []any{int64(3), "a2"}),
		slot(cols, []any{int64(1), "b0"}, []any{int64(2), "b1"}, []any{int64(3), "b2"}),
		slot(cols, []any{int64(2), "c0"}, []any{nil, "c1"}),
	), stmt, route.Multi)
	require.NoError(t, err)

	assert.Equal(t, [][]any{
		{int64(1), "a0"},
		{int64(1), "b0"},
		{int64(2), "b1"},
		{int64(2), "c0"},
		{int64(3), "a1"},
		{int64(3), "a2"},
		{int64(3), "b2"},
		{nil, "c1"},
	}, drain(t, m))
}

func TestOrderByDescNullsFirst(t *testing.T) {
	cols := []string{"id"}
	stmt := &stmtctx.Statement{
		Kind:        stmtctx.KindSelect,
		Projections: []stmtctx.Projection{{Expression: "id"}},
		OrderBy:     []stmtctx.OrderItem{{Column: "id", Desc: true, NullsFirst: true}},
	}

	m, err := merge.Merge(rowResults(
		slot(cols, []any{nil}, []any{int64(5)}, []any{int64(1)}),
		slot(cols, []any{int64(4)}, []any{int64(2)}),
	), stmt, route.Multi)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{nil}, {int64(5)}, {int64(4)}, {int64(2)}, {int64(1)}}, drain(t, m))
}

func TestDerivedOrderColumnIsHidden(t *testing.T) {
	stmt := &stmtctx.Statement{
		Kind:        stmtctx.KindSelect,
		SQL:         "SELECT name FROM t ORDER BY id",
		Projections: []stmtctx.Projection{{Expression: "name"}},
		OrderBy:     []stmtctx.OrderItem{{Column: "id"}},
	}
	cols := []string{"name", stmtctx.OrderByDerivedPrefix + "0"}

	m, err := merge.Merge(rowResults(
		slot(cols, []any{"x", int64(1)}, []any{"z", int64(4)}),
		slot(cols, []any{"y", int64(2)}),
	), stmt, route.Multi)
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, m.Columns())
	assert.Equal(t, [][]any{{"x"}, {"y"}, {"z"}}, drain(t, m))
}

func groupStatement() *stmtctx.Statement {
	return &stmtctx.Statement{
		Kind: stmtctx.KindSelect,
		SQL:  "SELECT g, SUM(x), COUNT(x), AVG(x) FROM t GROUP BY g",
		Projections: []stmtctx.Projection{
			{Expression: "g"},
			{Expression: "SUM(x)", Aggregate: stmtctx.AggregateSum, Argument: "x"},
			{Expression: "COUNT(x)", Aggregate: stmtctx.AggregateCount, Argument: "x"},
			{Expression: "AVG(x)", Aggregate: stmtctx.AggregateAvg, Argument: "x"},
		},
		GroupBy: []stmtctx.OrderItem{{Column: "g"}},
	}
}

var groupColumns = []string{"g", "SUM(x)", "COUNT(x)", "AVG(x)",
	stmtctx.AvgDerivedCountPrefix + "0", stmtctx.AvgDerivedSumPrefix + "0"}

func TestGroupByStreamMerge(t *testing.T) {
	m, err := merge.Merge(rowResults(
		slot(groupColumns,
			[]any{"a", int64(1), int64(1), 1.0, int64(1), int64(1)},
			[]any{"k", int64(3), int64(2), 1.5, int64(2), int64(3)},
		),
		slot(groupColumns,
			[]any{"k", int64(7), int64(3), 2.3333, int64(3), int64(7)},
			[]any{"z", int64(4), int64(2), 2.0, int64(2), int64(4)},
		),
	), groupStatement(), route.Multi)
	require.NoError(t, err)

	assert.Equal(t, []string{"g", "SUM(x)", "COUNT(x)", "AVG(x)"}, m.Columns())
	assert.Equal(t, [][]any{
		{"a", int64(1), int64(1), 1.0},
		{"k", int64(10), int64(5), 2.0},
		{"z", int64(4), int64(2), 2.0},
	}, drain(t, m))
}

func TestGroupByInMemory(t *testing.T) {
	stmt := groupStatement()
	stmt.OrderBy = []stmtctx.OrderItem{{Column: "SUM(x)", Desc: true}}

	m, err := merge.Merge(rowResults(
		slot(groupColumns,
			[]any{"k", int64(3), int64(2), 1.5, int64(2), int64(3)},
			[]any{"a", int64(1), int64(1), 1.0, int64(1), int64(1)},
		),
		slot(groupColumns,
			[]any{"k", int64(7), int64(3), 2.3333, int64(3), int64(7)},
			[]any{"z", int64(4), int64(2), 2.0, int64(2), int64(4)},
			[]any{"a", int64(2), int64(1), 2.0, int64(1), int64(2)},
		),
	), stmt, route.Multi)
	require.NoError(t, err)

	assert.Equal(t, [][]any{
		{"k", int64(10), int64(5), 2.0},
		{"z", int64(4), int64(2), 2.0},
		{"a", int64(3), int64(2), 1.5},
	}, drain(t, m))
}

func TestOrderByAggregateNotProjected(t *testing.T) {
	t.Run("sum", func(t *testing.T) {
		stmt := &stmtctx.Statement{
			Kind:        stmtctx.KindSelect,
			SQL:         "SELECT g FROM t GROUP BY g ORDER BY SUM(amount) DESC",
			Projections: []stmtctx.Projection{{Expression: "g"}},
			GroupBy:     []stmtctx.OrderItem{{Column: "g"}},
			OrderBy:     []stmtctx.OrderItem{{Column: "SUM(amount)", Desc: true}},
		}
		cols := []string{"g", stmtctx.OrderByDerivedPrefix + "0"}

		m, err := merge.Merge(rowResults(
			slot(cols, []any{"b", int64(5)}, []any{"a", int64(1)}),
			slot(cols, []any{"a", int64(10)}, []any{"b", int64(0)}),
		), stmt, route.Multi)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"a"}, {"b"}}, drain(t, m))
	})

	t.Run("avg", func(t *testing.T) {
		stmt := &stmtctx.Statement{
			Kind:        stmtctx.KindSelect,
			SQL:         "SELECT g FROM t GROUP BY g ORDER BY AVG(amount) DESC",
			Projections: []stmtctx.Projection{{Expression: "g"}},
			GroupBy:     []stmtctx.OrderItem{{Column: "g"}},
			OrderBy:     []stmtctx.OrderItem{{Column: "AVG(amount)", Desc: true}},
		}
		cols := []string{"g", stmtctx.OrderByDerivedPrefix + "0",
			stmtctx.AvgDerivedCountPrefix + "0", stmtctx.AvgDerivedSumPrefix + "0"}

		// a: 21 over 3 rows, b: 5 over 1 row
		m, err := merge.Merge(rowResults(
			slot(cols, []any{"b", 5.0, int64(1), int64(5)}, []any{"a", 1.0, int64(1), int64(1)}),
			slot(cols, []any{"a", 10.0, int64(2), int64(20)}),
		), stmt, route.Multi)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"a"}, {"b"}}, drain(t, m))
	})
}

func TestScalarAggregates(t *testing.T) {
	stmt := &stmtctx.Statement{
		Kind: stmtctx.KindSelect,
		Projections: []stmtctx.Projection{
			{Expression: "COUNT(*)", Aggregate: stmtctx.AggregateCount, Argument: "*"},
			{Expression: "MIN(price)", Aggregate: stmtctx.AggregateMin, Argument: "price"},
			{Expression: "MAX(price)", Aggregate: stmtctx.AggregateMax, Argument: "price"},
		},
	}
	cols := []string{"COUNT(*)", "MIN(price)", "MAX(price)"}

	m, err := merge.Merge(rowResults(
		slot(cols, []any{int64(4), 2.5, 9.0}),
		slot(cols, []any{int64(6), 1.5, 7.0}),
		slot(cols, []any{int64(0), nil, nil}),
	), stmt, route.Multi)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{int64(10), 1.5, 9.0}}, drain(t, m))
}

func TestPaginationMatchesUnshardedWindow(t *testing.T) {
	for _, tt := range []struct {
		name   string
		pg     *stmtctx.Pagination
		params []any
	}{
		{
			name: "literal",
			pg: &stmtctx.Pagination{
				Offset:   &stmtctx.PaginationValue{Value: stmtctx.Lit(int64(5))},
				RowCount: &stmtctx.PaginationValue{Value: stmtctx.Lit(int64(10))},
			},
		},
		{
			name: "bound parameters",
			pg: &stmtctx.Pagination{
				Offset:   &stmtctx.PaginationValue{Value: stmtctx.Param(1)},
				RowCount: &stmtctx.PaginationValue{Value: stmtctx.Param(2)},
			},
			params: []any{int64(5), int64(10)},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			stmt := &stmtctx.Statement{
				Kind:        stmtctx.KindSelect,
				Projections: []stmtctx.Projection{{Expression: "id"}},
				OrderBy:     []stmtctx.OrderItem{{Column: "id"}},
				Pagination:  tt.pg,
				Parameters:  tt.params,
			}

			// every source returns offset+count = 15 rows
			var slots []*tupleslot.TupleTableSlot
			for s := 0; s < 3; s++ {
				tts := tupleslot.New("id")
				for i := s; i < 45; i += 3 {
					tts.WriteDataRow(int64(i))
				}
				slots = append(slots, tts)
			}

			m, err := merge.Merge(rowResults(slots...), stmt, route.Multi)
			require.NoError(t, err)

			var want [][]any
			for i := 5; i < 15; i++ {
				want = append(want, []any{int64(i)})
			}
			assert.Equal(t, want, drain(t, m))
		})
	}
}

func TestCloseReleasesSourcesOnce(t *testing.T) {
	cols := []string{"id"}
	stmt := &stmtctx.Statement{
		Kind:        stmtctx.KindSelect,
		Projections: []stmtctx.Projection{{Expression: "id"}},
		OrderBy:     []stmtctx.OrderItem{{Column: "id"}},
	}
	short := slot(cols, []any{int64(1)})
	long1 := slot(cols, []any{int64(2)}, []any{int64(4)}, []any{int64(6)})
	long2 := slot(cols, []any{int64(3)}, []any{int64(5)})

	m, err := merge.Merge(rowResults(short, long1, long2), stmt, route.Multi)
	require.NoError(t, err)

	require.True(t, m.Next())
	require.True(t, m.Next())
	assert.Equal(t, []any{int64(2)}, m.Row())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.False(t, m.Next())

	for _, s := range []*tupleslot.TupleTableSlot{short, long1, long2} {
		assert.Equal(t, 1, s.CloseCount())
	}
}

func TestSingleRoutePassThrough(t *testing.T) {
	stmt := &stmtctx.Statement{
		Kind:        stmtctx.KindSelect,
		Projections: []stmtctx.Projection{{Expression: "id"}},
		OrderBy:     []stmtctx.OrderItem{{Column: "id", Desc: true}},
		Pagination: &stmtctx.Pagination{
			RowCount: &stmtctx.PaginationValue{Value: stmtctx.Lit(int64(1))},
		},
	}
	src := slot([]string{"id"}, []any{int64(3)}, []any{int64(9)})

	m, err := merge.Merge(rowResults(src), stmt, route.Single)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{int64(3)}, {int64(9)}}, drain(t, m))
	assert.Equal(t, 1, src.CloseCount())
}

func TestUpdateCounts(t *testing.T) {
	results := []executor.Result{
		&executor.UpdateCountResult{DataSource: "ds_0", Count: 2},
		&executor.UpdateCountResult{DataSource: "ds_1", Count: 3},
	}

	m, err := merge.Merge(results, &stmtctx.Statement{Kind: stmtctx.KindUpdate}, route.Multi)
	require.NoError(t, err)
	assert.True(t, m.IsUpdateCount())
	assert.Equal(t, int64(5), m.RowsAffected())
	assert.False(t, m.Next())

	m, err = merge.Merge(results, &stmtctx.Statement{Kind: stmtctx.KindUpdate}, route.Broadcast)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.RowsAffected())
}

func TestMergeErrors(t *testing.T) {
	stmt := &stmtctx.Statement{Kind: stmtctx.KindSelect, Projections: []stmtctx.Projection{{Expression: "id"}}}

	t.Run("rows and counts", func(t *testing.T) {
		src := slot([]string{"id"})
		_, err := merge.Merge([]executor.Result{
			&executor.RowStreamResult{DataSource: "ds_0", Rows: src},
			&executor.UpdateCountResult{DataSource: "ds_1", Count: 1},
		}, stmt, route.Multi)
		assert.True(t, sherror.Is(err, sherror.SH_MERGE_SEMANTIC))
		assert.Equal(t, 1, src.CloseCount())
	})

	t.Run("column mismatch", func(t *testing.T) {
		a, b := slot([]string{"id"}), slot([]string{"id", "name"})
		_, err := merge.Merge(rowResults(a, b), stmt, route.Multi)
		assert.True(t, sherror.Is(err, sherror.SH_MERGE_SEMANTIC))
		assert.Equal(t, 1, a.CloseCount())
		assert.Equal(t, 1, b.CloseCount())
	})

	t.Run("failed unit", func(t *testing.T) {
		src := slot([]string{"id"})
		_, err := merge.Merge([]executor.Result{
			&executor.RowStreamResult{DataSource: "ds_0", Rows: src},
			&executor.ErrorResult{DataSource: "ds_1", Err: errors.New("timeout")},
		}, stmt, route.Multi)
		assert.True(t, sherror.Is(err, sherror.SH_EXECUTION_FAILURE))
		assert.Equal(t, 1, src.CloseCount())
	})

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("connection lost")
		m, err := merge.Merge(rowResults(
			slot([]string{"id"}, []any{int64(1)}),
			slot([]string{"id"}, []any{int64(2)}).FailWith(boom),
		), stmt, route.Multi)
		require.NoError(t, err)

		var n int
		for m.Next() {
			n++
		}
		assert.Equal(t, 2, n)
		assert.ErrorIs(t, m.Err(), boom)
		assert.NoError(t, m.Close())
	})
}
