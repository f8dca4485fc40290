package qrouter_test

import (
	"context"
	"testing"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/models/shrule"
	"github.com/pg-sharding/shardsql/router/qrouter"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRuleSet(t *testing.T, withDefault bool) *shrule.RuleSet {
	t.Helper()

	orderStrategy := func(table string) *config.TableRuleCfg {
		return &config.TableRuleCfg{
			DataNodes: "ds_${0..1}." + table + "_${0..1}",
			DatabaseStrategy: &config.StrategyCfg{
				Columns:   []string{"user_id"},
				Algorithm: config.AlgorithmCfg{Type: config.AlgorithmHashMod, Count: 2},
			},
			TableStrategy: &config.StrategyCfg{
				Columns:   []string{"order_id"},
				Algorithm: config.AlgorithmCfg{Type: config.AlgorithmInline, Expression: table + "_${order_id % 2}"},
			},
		}
	}

	cfg := &config.RulesCfg{
		DataSources:     []string{"ds_0", "ds_1"},
		BroadcastTables: []string{"t_config"},
		BindingGroups:   [][]string{{"t_order", "t_order_item"}},
		UnshardedTables: map[string]string{"t_audit": "ds_1"},
		Tables: map[string]*config.TableRuleCfg{
			"t_order":      orderStrategy("t_order"),
			"t_order_item": orderStrategy("t_order_item"),
			"t_user": {
				DataNodes: "ds_${0..1}.t_user",
				DatabaseStrategy: &config.StrategyCfg{
					Columns: []string{"id"},
					Algorithm: config.AlgorithmCfg{
						Type: config.AlgorithmRange,
						Ranges: []config.KeyRangeCfg{
							{ID: "low", LowerBound: "0", Target: "ds_0"},
							{ID: "high", LowerBound: "1000", Target: "ds_1"},
						},
					},
				},
			},
		},
	}
	if withDefault {
		cfg.DefaultDataSource = "ds_0"
	}
	rs, err := shrule.NewRuleSet(cfg)
	require.NoError(t, err)
	return rs
}

func eq(table, column string, vals ...any) stmtctx.Condition {
	c := stmtctx.Condition{Table: table, Column: column}
	for _, v := range vals {
		c.Values = append(c.Values, stmtctx.Lit(v))
	}
	return c
}

func tables(names ...string) []stmtctx.TableRef {
	var res []stmtctx.TableRef
	for _, n := range names {
		res = append(res, stmtctx.TableRef{Name: n})
	}
	return res
}

func unit(ds string, pairs ...string) *route.Unit {
	u := &route.Unit{DataSource: ds}
	for i := 0; i+1 < len(pairs); i += 2 {
		u.TableMappers = append(u.TableMappers, route.TableMapper{LogicalTable: pairs[i], ActualTable: pairs[i+1]})
	}
	return u
}

func TestRoute(t *testing.T) {
	rs := testRuleSet(t, true)
	pr := qrouter.NewProxyRouter()

	type tcase struct {
		name string
		stmt *stmtctx.Statement
		exp  *route.Context
	}

	for _, tt := range []tcase{
		{
			name: "no tables",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, SQL: "SELECT 1"},
			exp:  &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_0")}},
		},
		{
			name: "both sharding columns fixed",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindSelect,
				Tables:     tables("t_order"),
				Conditions: []stmtctx.Condition{eq("t_order", "user_id", 3), eq("t_order", "order_id", 10)},
			},
			exp: &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_1", "t_order", "t_order_0")}},
		},
		{
			name: "bound parameter",
			stmt: &stmtctx.Statement{
				Kind:   stmtctx.KindSelect,
				Tables: tables("t_order"),
				Conditions: []stmtctx.Condition{
					{Table: "t_order", Column: "user_id", Values: []stmtctx.Value{stmtctx.Param(1)}},
					{Table: "t_order", Column: "order_id", Values: []stmtctx.Value{stmtctx.Param(2)}},
				},
				Parameters: []any{int64(2), int64(1)},
			},
			exp: &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_0", "t_order", "t_order_1")}},
		},
		{
			name: "full route",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_order")},
			exp: &route.Context{Type: route.Multi, Units: []*route.Unit{
				unit("ds_0", "t_order", "t_order_0"),
				unit("ds_0", "t_order", "t_order_1"),
				unit("ds_1", "t_order", "t_order_0"),
				unit("ds_1", "t_order", "t_order_1"),
			}},
		},
		{
			name: "contradicting equalities fall back to full route",
			stmt: &stmtctx.Statement{
				Kind:   stmtctx.KindSelect,
				Tables: tables("t_order"),
				Conditions: []stmtctx.Condition{
					eq("t_order", "user_id", 1), eq("t_order", "user_id", 2), eq("t_order", "order_id", 0),
				},
			},
			exp: &route.Context{Type: route.Multi, Units: []*route.Unit{
				unit("ds_0", "t_order", "t_order_0"),
				unit("ds_1", "t_order", "t_order_0"),
			}},
		},
		{
			name: "binding tables paired by index",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindSelect,
				Tables:     tables("t_order", "t_order_item"),
				Conditions: []stmtctx.Condition{eq("t_order", "user_id", 3)},
			},
			exp: &route.Context{Type: route.Multi, Units: []*route.Unit{
				unit("ds_1", "t_order", "t_order_0", "t_order_item", "t_order_item_0"),
				unit("ds_1", "t_order", "t_order_1", "t_order_item", "t_order_item_1"),
			}},
		},
		{
			name: "non binding tables are combined per data source",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindSelect,
				Tables:     tables("t_order", "t_user"),
				Conditions: []stmtctx.Condition{eq("t_order", "user_id", 2), eq("t_user", "id", 5)},
			},
			exp: &route.Context{Type: route.Multi, Units: []*route.Unit{
				unit("ds_0", "t_order", "t_order_0", "t_user", "t_user"),
				unit("ds_0", "t_order", "t_order_1", "t_user", "t_user"),
			}},
		},
		{
			name: "broadcast read is unicast",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_config")},
			exp:  &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_0", "t_config", "t_config")}},
		},
		{
			name: "broadcast write goes everywhere",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindUpdate, Tables: tables("t_config")},
			exp: &route.Context{Type: route.Broadcast, Units: []*route.Unit{
				unit("ds_0", "t_config", "t_config"),
				unit("ds_1", "t_config", "t_config"),
			}},
		},
		{
			name: "broadcast joined with sharded table",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindSelect,
				Tables:     tables("t_user", "t_config"),
				Conditions: []stmtctx.Condition{eq("t_user", "id", 2000)},
			},
			exp: &route.Context{Type: route.Single, Units: []*route.Unit{
				unit("ds_1", "t_user", "t_user", "t_config", "t_config"),
			}},
		},
		{
			name: "unsharded table",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindDelete, Tables: tables("t_audit")},
			exp:  &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_1", "t_audit", "t_audit")}},
		},
		{
			name: "read over broadcast and unsharded tables",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_config", "t_audit")},
			exp: &route.Context{Type: route.Single, Units: []*route.Unit{
				unit("ds_1", "t_audit", "t_audit", "t_config", "t_config"),
			}},
		},
		{
			name: "unsharded table restricts sharded table",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_user", "t_audit")},
			exp: &route.Context{Type: route.Single, Units: []*route.Unit{
				unit("ds_1", "t_user", "t_user", "t_audit", "t_audit"),
			}},
		},
		{
			name: "table without rule goes to default",
			stmt: &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_misc")},
			exp:  &route.Context{Type: route.Single, Units: []*route.Unit{unit("ds_0", "t_misc", "t_misc")}},
		},
		{
			name: "ddl on sharded table",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindDDL,
				Tables:     tables("t_order"),
				Conditions: []stmtctx.Condition{eq("t_order", "user_id", 3)},
			},
			exp: &route.Context{Type: route.Multi, Units: []*route.Unit{
				unit("ds_0", "t_order", "t_order_0"),
				unit("ds_0", "t_order", "t_order_1"),
				unit("ds_1", "t_order", "t_order_0"),
				unit("ds_1", "t_order", "t_order_1"),
			}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := pr.Route(context.TODO(), tt.stmt, rs)
			require.NoError(t, err)
			assert.Equal(t, tt.exp, rc)
		})
	}
}

func TestRouteErrors(t *testing.T) {
	pr := qrouter.NewProxyRouter()

	for _, tt := range []struct {
		name     string
		stmt     *stmtctx.Statement
		withDflt bool
		code     string
	}{
		{
			name: "bound tables never meet",
			stmt: &stmtctx.Statement{
				Kind:   stmtctx.KindSelect,
				Tables: tables("t_order", "t_order_item"),
				Conditions: []stmtctx.Condition{
					eq("t_order", "order_id", 1), eq("t_order_item", "order_id", 2),
				},
			},
			withDflt: true,
			code:     sherror.SH_ROUTING_AMBIGUITY,
		},
		{
			name: "no common data source",
			stmt: &stmtctx.Statement{
				Kind:       stmtctx.KindSelect,
				Tables:     tables("t_order", "t_user"),
				Conditions: []stmtctx.Condition{eq("t_order", "user_id", 2), eq("t_user", "id", 1500)},
			},
			withDflt: true,
			code:     sherror.SH_ROUTING_AMBIGUITY,
		},
		{
			name: "write over broadcast and unsharded tables",
			stmt: &stmtctx.Statement{
				Kind:   stmtctx.KindUpdate,
				Tables: tables("t_config", "t_audit"),
			},
			withDflt: true,
			code:     sherror.SH_ROUTING_AMBIGUITY,
		},
		{
			name:     "unknown table without default",
			stmt:     &stmtctx.Statement{Kind: stmtctx.KindSelect, Tables: tables("t_misc")},
			withDflt: false,
			code:     sherror.SH_CONFIGURATION,
		},
		{
			name: "insert without sharding value",
			stmt: &stmtctx.Statement{
				Kind:   stmtctx.KindInsert,
				Tables: tables("t_order"),
				InsertRows: []stmtctx.InsertRow{
					{Values: map[string]stmtctx.Value{"user_id": stmtctx.Lit(1)}},
				},
			},
			withDflt: true,
			code:     sherror.SH_MISSING_SHARDING_KEY,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pr.Route(context.TODO(), tt.stmt, testRuleSet(t, tt.withDflt))
			require.Error(t, err)
			assert.True(t, sherror.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestRouteInsertSplitsRows(t *testing.T) {
	rs := testRuleSet(t, true)
	pr := qrouter.NewProxyRouter()

	row := func(user, order int64) stmtctx.InsertRow {
		return stmtctx.InsertRow{Values: map[string]stmtctx.Value{
			"user_id":  stmtctx.Lit(user),
			"order_id": stmtctx.Lit(order),
		}}
	}

	rc, err := pr.Route(context.TODO(), &stmtctx.Statement{
		Kind:       stmtctx.KindInsert,
		Tables:     tables("t_order"),
		InsertRows: []stmtctx.InsertRow{row(0, 0), row(1, 1), row(0, 2)},
	}, rs)
	require.NoError(t, err)

	first := unit("ds_0", "t_order", "t_order_0")
	first.InsertRows = []int{0, 2}
	second := unit("ds_1", "t_order", "t_order_1")
	second.InsertRows = []int{1}
	assert.Equal(t, &route.Context{Type: route.Multi, Units: []*route.Unit{first, second}}, rc)

	assert.Equal(t, []string{
		"multi ds_0 t_order->t_order_0 rows=[0 2]",
		"multi ds_1 t_order->t_order_1 rows=[1]",
	}, qrouter.Explain(rc))
}

func TestRouteNoDefaultPicksFirstDataSource(t *testing.T) {
	rs := testRuleSet(t, false)
	rc, err := qrouter.NewQrouter().Route(context.TODO(), &stmtctx.Statement{Kind: stmtctx.KindSelect}, rs)
	require.NoError(t, err)
	assert.Equal(t, []string{"ds_0"}, rc.DataSources())
}
