package qrouter

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/models/shrule"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// shardingValues collects what the statement's conditions say about the
// sharding columns of one table. Equality sets on the same column are
// intersected; an equality beats a range on the same column. A column
// whose equality sets have an empty intersection is left out, which makes
// the table fully routed.
func shardingValues(stmt *stmtctx.Statement, tr *shrule.TableRule) (map[string]shrule.ShardingValue, error) {
	columns := tr.ShardingColumns()
	res := map[string]shrule.ShardingValue{}
	contradicted := map[string]struct{}{}

	for _, cond := range stmt.ConditionsOn(tr.LogicalTable) {
		col := strings.ToLower(cond.Column)
		if !containsColumn(columns, col) {
			continue
		}
		if _, ok := contradicted[col]; ok {
			continue
		}

		if !cond.IsRange() {
			vals, err := resolveValues(cond.Values, stmt.Parameters)
			if err != nil {
				return nil, err
			}
			prev, ok := res[col]
			if ok && !prev.IsRange {
				vals = intersect(prev.Values, vals)
				if len(vals) == 0 {
					delete(res, col)
					contradicted[col] = struct{}{}
					continue
				}
			}
			res[col] = shrule.ShardingValue{Column: col, Values: vals}
			continue
		}

		if _, ok := res[col]; ok {
			continue
		}
		sv := shrule.ShardingValue{Column: col, IsRange: true}
		var err error
		if cond.Lower != nil {
			if sv.Lower, err = resolveValue(*cond.Lower, stmt.Parameters); err != nil {
				return nil, err
			}
		}
		if cond.Upper != nil {
			if sv.Upper, err = resolveValue(*cond.Upper, stmt.Parameters); err != nil {
				return nil, err
			}
		}
		res[col] = sv
	}
	return res, nil
}

// insertRowValues extracts the sharding values of one INSERT row.
func insertRowValues(stmt *stmtctx.Statement, tr *shrule.TableRule, row stmtctx.InsertRow) (map[string]shrule.ShardingValue, error) {
	res := map[string]shrule.ShardingValue{}
	for _, col := range tr.ShardingColumns() {
		v, ok := row.Values[col]
		if !ok {
			continue
		}
		val, err := resolveValue(v, stmt.Parameters)
		if err != nil {
			return nil, err
		}
		res[col] = shrule.ShardingValue{Column: col, Values: []any{val}}
	}
	return res, nil
}

func resolveValue(v stmtctx.Value, params []any) (any, error) {
	val, err := v.Resolve(params)
	if err != nil {
		return nil, sherror.Wrap(sherror.SH_UNEXPECTED, err)
	}
	return val, nil
}

func resolveValues(vs []stmtctx.Value, params []any) ([]any, error) {
	res := make([]any, 0, len(vs))
	for _, v := range vs {
		val, err := resolveValue(v, params)
		if err != nil {
			return nil, err
		}
		res = append(res, val)
	}
	return res, nil
}

func intersect(a, b []any) []any {
	set := map[string]struct{}{}
	for _, v := range a {
		set[fmt.Sprint(v)] = struct{}{}
	}
	var res []any
	for _, v := range b {
		if _, ok := set[fmt.Sprint(v)]; ok {
			res = append(res, v)
		}
	}
	return res
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
