package frontend_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/datashard"
	"github.com/pg-sharding/shardsql/pkg/keygen"
	"github.com/pg-sharding/shardsql/router/frontend"
	"github.com/pg-sharding/shardsql/router/qrouter"
	"github.com/pg-sharding/shardsql/router/rewrite"
	"github.com/pg-sharding/shardsql/router/routingstate"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteFrontend(t *testing.T) (*frontend.Frontend, *datashard.Pool) {
	t.Helper()
	dir := t.TempDir()
	pool, err := datashard.Open(context.Background(), map[string]*config.ShardCfg{
		"ds_0": {Driver: "sqlite", DSN: filepath.Join(dir, "ds_0.db") + "?_pragma=busy_timeout(5000)"},
		"ds_1": {Driver: "sqlite", DSN: filepath.Join(dir, "ds_1.db") + "?_pragma=busy_timeout(5000)"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	holder := routingstate.NewHolder(nil)
	_, err = holder.ReloadFromConfig(&config.RulesCfg{
		DataSources:       []string{"ds_0", "ds_1"},
		DefaultDataSource: "ds_0",
		BroadcastTables:   []string{"t_config"},
		Tables: map[string]*config.TableRuleCfg{
			"t_order": {
				DataNodes: "ds_${0..1}.t_order",
				DatabaseStrategy: &config.StrategyCfg{
					Columns:   []string{"user_id"},
					Algorithm: config.AlgorithmCfg{Type: config.AlgorithmHashMod, Count: 2},
				},
			},
		},
	})
	require.NoError(t, err)

	f := frontend.NewFrontend(holder, qrouter.NewQrouter(), pool, keygen.NewSequence(),
		config.ExecutorCfg{MaxParallelism: 4, ParamStyle: config.ParamStyleQuestion})
	return f, pool
}

func ddl(t *testing.T, sql, table string) *stmtctx.Statement {
	return &stmtctx.Statement{Kind: stmtctx.KindDDL, SQL: sql, Tables: tableRef(t, sql, table)}
}

func physicalRows(t *testing.T, pool *datashard.Pool, ds, sql string) [][]any {
	t.Helper()
	rows, err := pool.Query(context.Background(), rewrite.SQLUnit{DataSource: ds, SQL: sql})
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	var res [][]any
	for rows.Next() {
		res = append(res, rows.Row())
	}
	require.NoError(t, rows.Err())
	return res
}

func TestEndToEnd(t *testing.T) {
	f, pool := sqliteFrontend(t)

	execCount(t, f, ddl(t, "CREATE TABLE t_order (user_id INTEGER, order_id INTEGER, amount INTEGER)", "t_order"))
	execCount(t, f, ddl(t, "CREATE TABLE t_config (id INTEGER, name TEXT)", "t_config"))

	t.Run("insert is split by sharding key", func(t *testing.T) {
		var values []string
		var params []any
		for u := 0; u < 4; u++ {
			for o := 0; o < 2; o++ {
				values = append(values, "(?, ?, ?)")
				params = append(params, int64(u), int64(o), int64(u*10+o))
			}
		}
		sql := "INSERT INTO t_order (user_id, order_id, amount) VALUES " + strings.Join(values, ", ")

		var rows []stmtctx.InsertRow
		for i := range values {
			start, stop := span(t, sql, "(?, ?, ?)", i)
			rows = append(rows, stmtctx.InsertRow{Start: start, Stop: stop, Values: map[string]stmtctx.Value{
				"user_id":  stmtctx.Param(3*i + 1),
				"order_id": stmtctx.Param(3*i + 2),
				"amount":   stmtctx.Param(3*i + 3),
			}})
		}

		n := execCount(t, f, &stmtctx.Statement{
			Kind:          stmtctx.KindInsert,
			SQL:           sql,
			Tables:        tableRef(t, sql, "t_order"),
			Placeholders:  placeholders(sql),
			InsertColumns: []string{"user_id", "order_id", "amount"},
			InsertRows:    rows,
			Parameters:    params,
		})
		assert.Equal(t, int64(8), n)

		assert.Equal(t, [][]any{{int64(0)}, {int64(2)}},
			physicalRows(t, pool, "ds_0", "SELECT DISTINCT user_id FROM t_order ORDER BY user_id"))
		assert.Equal(t, [][]any{{int64(1)}, {int64(3)}},
			physicalRows(t, pool, "ds_1", "SELECT DISTINCT user_id FROM t_order ORDER BY user_id"))
	})

	t.Run("group by with avg", func(t *testing.T) {
		sql := "SELECT user_id, SUM(amount), AVG(amount) FROM t_order GROUP BY user_id"
		rows := queryRows(t, f, &stmtctx.Statement{
			Kind:   stmtctx.KindSelect,
			SQL:    sql,
			Tables: tableRef(t, sql, "t_order"),
			Projections: []stmtctx.Projection{
				{Expression: "user_id"},
				{Expression: "SUM(amount)", Aggregate: stmtctx.AggregateSum, Argument: "amount"},
				{Expression: "AVG(amount)", Aggregate: stmtctx.AggregateAvg, Argument: "amount"},
			},
			ProjectionsStop: len("SELECT user_id, SUM(amount), AVG(amount)"),
			GroupBy:         []stmtctx.OrderItem{{Column: "user_id"}},
			GroupByStop:     len(sql),
		})
		assert.Equal(t, [][]any{
			{int64(0), int64(1), 0.5},
			{int64(1), int64(21), 10.5},
			{int64(2), int64(41), 20.5},
			{int64(3), int64(61), 30.5},
		}, rows)
	})

	t.Run("global order with pagination", func(t *testing.T) {
		sql := "SELECT user_id, amount FROM t_order ORDER BY amount DESC LIMIT 3 OFFSET 1"
		limStart, limStop := span(t, sql, "3", 0)
		offStart, offStop := span(t, sql, "1", 0)
		rows := queryRows(t, f, &stmtctx.Statement{
			Kind:            stmtctx.KindSelect,
			SQL:             sql,
			Tables:          tableRef(t, sql, "t_order"),
			Projections:     []stmtctx.Projection{{Expression: "user_id"}, {Expression: "amount"}},
			ProjectionsStop: len("SELECT user_id, amount"),
			OrderBy:         []stmtctx.OrderItem{{Column: "amount", Desc: true}},
			Pagination: &stmtctx.Pagination{
				RowCount: &stmtctx.PaginationValue{Value: stmtctx.Lit(int64(3)), Start: limStart, Stop: limStop},
				Offset:   &stmtctx.PaginationValue{Value: stmtctx.Lit(int64(1)), Start: offStart, Stop: offStop},
			},
		})
		assert.Equal(t, [][]any{{int64(3), int64(30)}, {int64(2), int64(21)}, {int64(2), int64(20)}}, rows)
	})

	t.Run("point select", func(t *testing.T) {
		sql := "SELECT amount FROM t_order WHERE user_id = ? ORDER BY amount"
		rows := queryRows(t, f, &stmtctx.Statement{
			Kind:         stmtctx.KindSelect,
			SQL:          sql,
			Tables:       tableRef(t, sql, "t_order"),
			Projections:  []stmtctx.Projection{{Expression: "amount"}},
			OrderBy:      []stmtctx.OrderItem{{Column: "amount"}},
			Conditions:   []stmtctx.Condition{{Table: "t_order", Column: "user_id", Values: []stmtctx.Value{stmtctx.Param(1)}}},
			Placeholders: placeholders(sql),
			Parameters:   []any{int64(3)},
		})
		assert.Equal(t, [][]any{{int64(30)}, {int64(31)}}, rows)
	})

	t.Run("broadcast insert with generated key", func(t *testing.T) {
		sql := "INSERT INTO t_config (name) VALUES (?)"
		colStop, _ := span(t, sql, ")", 0)
		rowStart, rowStop := span(t, sql, "(?)", 0)
		n := execCount(t, f, &stmtctx.Statement{
			Kind:          stmtctx.KindInsert,
			SQL:           sql,
			Tables:        tableRef(t, sql, "t_config"),
			Placeholders:  placeholders(sql),
			InsertColumns: []string{"name"},
			InsertRows: []stmtctx.InsertRow{
				{Start: rowStart, Stop: rowStop, Values: map[string]stmtctx.Value{"name": stmtctx.Param(1)}},
			},
			GeneratedKey: &stmtctx.GeneratedKey{Column: "id", ColumnsStop: colStop},
			Parameters:   []any{"a"},
		})
		assert.Equal(t, int64(1), n)

		for _, ds := range []string{"ds_0", "ds_1"} {
			assert.Equal(t, [][]any{{int64(1), "a"}}, physicalRows(t, pool, ds, "SELECT id, name FROM t_config"), ds)
		}
	})

	t.Run("delete and count", func(t *testing.T) {
		sql := "DELETE FROM t_order WHERE user_id IN (?, ?)"
		n := execCount(t, f, &stmtctx.Statement{
			Kind:   stmtctx.KindDelete,
			SQL:    sql,
			Tables: tableRef(t, sql, "t_order"),
			Conditions: []stmtctx.Condition{{Table: "t_order", Column: "user_id",
				Values: []stmtctx.Value{stmtctx.Param(1), stmtctx.Param(2)}}},
			Placeholders: placeholders(sql),
			Parameters:   []any{int64(0), int64(1)},
		})
		assert.Equal(t, int64(4), n)

		sql = "SELECT COUNT(*) FROM t_order"
		rows := queryRows(t, f, &stmtctx.Statement{
			Kind:   stmtctx.KindSelect,
			SQL:    sql,
			Tables: []stmtctx.TableRef{{Name: "t_order", Start: len(sql) - len("t_order"), Stop: len(sql)}},
			Projections: []stmtctx.Projection{
				{Expression: "COUNT(*)", Aggregate: stmtctx.AggregateCount, Argument: "*"},
			},
			ProjectionsStop: len("SELECT COUNT(*)"),
		})
		assert.Equal(t, [][]any{{int64(4)}}, rows)
	})

	t.Run("explain", func(t *testing.T) {
		sql := "SELECT amount FROM t_order WHERE user_id = 2"
		tts, err := f.Explain(context.Background(), &stmtctx.Statement{
			Kind:        stmtctx.KindSelect,
			SQL:         sql,
			Tables:      tableRef(t, sql, "t_order"),
			Projections: []stmtctx.Projection{{Expression: "amount"}},
			Conditions:  []stmtctx.Condition{{Table: "t_order", Column: "user_id", Values: []stmtctx.Value{stmtctx.Lit(int64(2))}}},
		})
		require.NoError(t, err)
		assert.Equal(t, [][]any{{"single ds_0 t_order->t_order", sql, fmt.Sprint([]any(nil))}}, tts.Raw)
	})
}
