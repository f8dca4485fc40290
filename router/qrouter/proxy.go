package qrouter

import (
	"context"
	"sort"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/pkg/models/shrule"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/route"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

type ProxyQrouter struct{}

var _ QueryRouter = &ProxyQrouter{}

func NewProxyRouter() *ProxyQrouter {
	return &ProxyQrouter{}
}

// tableSet splits the tables of a statement by kind, keeping statement order.
type tableSet struct {
	sharded   []*shrule.TableRule
	broadcast []string
	unsharded map[string]string
	order     []string
}

func classify(stmt *stmtctx.Statement, rs *shrule.RuleSet) (*tableSet, error) {
	ts := &tableSet{unsharded: map[string]string{}}
	for _, t := range stmt.LogicalTables() {
		ts.order = append(ts.order, t)
		if tr, ok := rs.TableRule(t); ok {
			ts.sharded = append(ts.sharded, tr)
			continue
		}
		if rs.IsBroadcast(t) {
			ts.broadcast = append(ts.broadcast, t)
			continue
		}
		ds, ok := rs.UnshardedDataSource(t)
		if !ok {
			return nil, sherror.New(sherror.SH_CONFIGURATION,
				"table %s has no sharding rule and no default data source is configured", t)
		}
		ts.unsharded[t] = ds
	}
	return ts, nil
}

// Route implements QueryRouter.
func (qr *ProxyQrouter) Route(ctx context.Context, stmt *stmtctx.Statement, rs *shrule.RuleSet) (*route.Context, error) {
	if len(rs.DataSources()) == 0 {
		return nil, sherror.New(sherror.SH_CONFIGURATION, "no data sources configured")
	}

	ts, err := classify(stmt, rs)
	if err != nil {
		return nil, err
	}

	var rc *route.Context
	switch {
	case len(ts.order) == 0:
		rc = route.NewContext([]*route.Unit{{DataSource: anyDataSource(rs)}}, route.Single)
	case stmt.Kind == stmtctx.KindInsert:
		rc, err = qr.routeInsert(stmt, rs, ts)
	case len(ts.sharded) == 0:
		rc, err = qr.routeNonSharded(stmt, rs, ts)
	default:
		rc, err = qr.routeSharded(stmt, rs, ts)
	}
	if err != nil {
		return nil, err
	}

	shlog.Zero.Debug().
		Str("kind", stmt.Kind.String()).
		Str("route-type", rc.Type.String()).
		Int("units", len(rc.Units)).
		Msg("routed statement")
	return rc, nil
}

func anyDataSource(rs *shrule.RuleSet) string {
	if ds, ok := rs.DefaultDataSource(); ok {
		return ds
	}
	return rs.DataSources()[0]
}

func identityMappers(tables []string) []route.TableMapper {
	res := make([]route.TableMapper, 0, len(tables))
	for _, t := range tables {
		res = append(res, route.TableMapper{LogicalTable: t, ActualTable: t})
	}
	return res
}

func (ts *tableSet) unshardedDataSource() (string, bool, error) {
	var ds string
	for _, t := range ts.order {
		d, ok := ts.unsharded[t]
		if !ok {
			continue
		}
		if ds != "" && d != ds {
			return "", false, sherror.New(sherror.SH_ROUTING_AMBIGUITY,
				"unsharded tables live on different data sources %s and %s", ds, d)
		}
		ds = d
	}
	return ds, ds != "", nil
}

func (ts *tableSet) unshardedTables() []string {
	var res []string
	for _, t := range ts.order {
		if _, ok := ts.unsharded[t]; ok {
			res = append(res, t)
		}
	}
	return res
}

// routeNonSharded handles statements over broadcast and unsharded tables only.
func (qr *ProxyQrouter) routeNonSharded(stmt *stmtctx.Statement, rs *shrule.RuleSet, ts *tableSet) (*route.Context, error) {
	ds, hasUnsharded, err := ts.unshardedDataSource()
	if err != nil {
		return nil, err
	}
	mappers := append(identityMappers(ts.unshardedTables()), identityMappers(ts.broadcast)...)

	if hasUnsharded {
		if stmt.Kind.IsWrite() && len(ts.broadcast) > 0 {
			// broadcast replicas must stay identical on every data source
			return nil, sherror.New(sherror.SH_ROUTING_AMBIGUITY,
				"write over broadcast tables %v can not run on the single data source %s of unsharded tables", ts.broadcast, ds)
		}
		return route.NewContext([]*route.Unit{{DataSource: ds, TableMappers: mappers}}, route.Single), nil
	}

	if !stmt.Kind.IsWrite() {
		// one replica answers a read
		return route.NewContext([]*route.Unit{{DataSource: anyDataSource(rs), TableMappers: mappers}}, route.Single), nil
	}

	units := make([]*route.Unit, 0, len(rs.DataSources()))
	for _, d := range rs.DataSources() {
		units = append(units, &route.Unit{DataSource: d, TableMappers: identityMappers(ts.broadcast)})
	}
	return route.NewContext(units, typeOf(units, true)), nil
}

func typeOf(units []*route.Unit, allBroadcast bool) route.Type {
	switch {
	case len(units) == 1:
		return route.Single
	case allBroadcast:
		return route.Broadcast
	}
	return route.Multi
}

// combo is one way to place a group of tables inside a data source.
type combo []route.TableMapper

// routeSharded handles statements touching at least one sharded table.
func (qr *ProxyQrouter) routeSharded(stmt *stmtctx.Statement, rs *shrule.RuleSet, ts *tableSet) (*route.Context, error) {
	nodes := make(map[string][]shrule.DataNode, len(ts.sharded))
	for _, tr := range ts.sharded {
		if stmt.Kind == stmtctx.KindDDL {
			nodes[tr.LogicalTable] = tr.DataNodes
			continue
		}
		values, err := shardingValues(stmt, tr)
		if err != nil {
			return nil, err
		}
		n, err := tr.Route(values)
		if err != nil {
			return nil, err
		}
		nodes[tr.LogicalTable] = n
	}

	groups, err := qr.groupCombos(rs, ts.sharded, nodes)
	if err != nil {
		return nil, err
	}

	// data sources every group can be placed in
	var common []string
	for i, g := range groups {
		var dss []string
		for ds := range g {
			dss = append(dss, ds)
		}
		if i == 0 {
			common = dss
		} else {
			common = intersectStrings(common, dss)
		}
	}

	ds, hasUnsharded, err := ts.unshardedDataSource()
	if err != nil {
		return nil, err
	}
	if hasUnsharded {
		common = intersectStrings(common, []string{ds})
	}
	sort.Strings(common)
	if len(common) == 0 {
		return nil, sherror.New(sherror.SH_ROUTING_AMBIGUITY,
			"tables %v can not be placed on a common data source", ts.order)
	}

	extra := append(identityMappers(ts.unshardedTables()), identityMappers(ts.broadcast)...)
	var units []*route.Unit
	for _, ds := range common {
		combos := []combo{nil}
		for _, g := range groups {
			next := make([]combo, 0, len(combos)*len(g[ds]))
			for _, prefix := range combos {
				for _, c := range g[ds] {
					joined := append(append(combo(nil), prefix...), c...)
					next = append(next, joined)
				}
			}
			combos = next
		}
		for _, c := range combos {
			units = append(units, &route.Unit{
				DataSource:   ds,
				TableMappers: append(append([]route.TableMapper(nil), c...), extra...),
			})
		}
	}

	return route.NewContext(units, typeOf(units, false)), nil
}

// groupCombos builds, per table group, the placements available in every
// data source. Tables of one binding group form one group and are paired by
// table index; every other sharded table is a group of its own.
func (qr *ProxyQrouter) groupCombos(rs *shrule.RuleSet, sharded []*shrule.TableRule,
	nodes map[string][]shrule.DataNode) ([]map[string][]combo, error) {

	bound := map[int][]*shrule.TableRule{}
	for _, tr := range sharded {
		if g, ok := rs.BindingGroupOf(tr.LogicalTable); ok {
			bound[g] = append(bound[g], tr)
		}
	}

	var groups []map[string][]combo
	done := map[int]struct{}{}
	for _, tr := range sharded {
		g, ok := rs.BindingGroupOf(tr.LogicalTable)
		if !ok {
			placements := map[string][]combo{}
			for _, n := range nodes[tr.LogicalTable] {
				placements[n.DataSource] = append(placements[n.DataSource],
					combo{{LogicalTable: tr.LogicalTable, ActualTable: n.Table}})
			}
			groups = append(groups, placements)
			continue
		}
		if _, ok := done[g]; ok {
			continue
		}
		done[g] = struct{}{}

		placements, err := bindingPlacements(bound[g], nodes)
		if err != nil {
			return nil, err
		}
		groups = append(groups, placements)
	}
	return groups, nil
}

// bindingPlacements pairs the nodes of bound tables by table index,
// starting from the first table. A pair is kept only if every bound table
// was routed to its member.
func bindingPlacements(tables []*shrule.TableRule, nodes map[string][]shrule.DataNode) (map[string][]combo, error) {
	primary := tables[0]
	placements := map[string][]combo{}

nextNode:
	for _, n := range nodes[primary.LogicalTable] {
		idx := primary.TableIndex(n)
		c := combo{{LogicalTable: primary.LogicalTable, ActualTable: n.Table}}
		for _, other := range tables[1:] {
			otherTables := other.TablesIn(n.DataSource)
			if idx < 0 || idx >= len(otherTables) {
				continue nextNode
			}
			pair := shrule.DataNode{DataSource: n.DataSource, Table: otherTables[idx]}
			if !containsNode(nodes[other.LogicalTable], pair) {
				continue nextNode
			}
			c = append(c, route.TableMapper{LogicalTable: other.LogicalTable, ActualTable: pair.Table})
		}
		placements[n.DataSource] = append(placements[n.DataSource], c)
	}

	if len(placements) == 0 {
		return nil, sherror.New(sherror.SH_ROUTING_AMBIGUITY,
			"sharding values of bound tables %s do not meet on any data node", names(tables))
	}
	return placements, nil
}

// routeInsert sends every VALUES row to the single data node it belongs to.
func (qr *ProxyQrouter) routeInsert(stmt *stmtctx.Statement, rs *shrule.RuleSet, ts *tableSet) (*route.Context, error) {
	target := ts.order[0]
	tr, ok := rs.TableRule(target)
	if !ok {
		return qr.routeNonSharded(stmt, rs, ts)
	}
	if len(ts.order) > 1 {
		return nil, sherror.New(sherror.SH_COMPLEX_QUERY, "INSERT into sharded table %s reads other tables", target)
	}
	if len(stmt.InsertRows) == 0 {
		return nil, sherror.New(sherror.SH_MISSING_SHARDING_KEY, "INSERT into %s has no VALUES rows", target)
	}

	byNode := map[shrule.DataNode]*route.Unit{}
	var units []*route.Unit
	for i, row := range stmt.InsertRows {
		values, err := insertRowValues(stmt, tr, row)
		if err != nil {
			return nil, err
		}
		for _, col := range tr.ShardingColumns() {
			if _, ok := values[col]; !ok {
				return nil, sherror.New(sherror.SH_MISSING_SHARDING_KEY,
					"row %d of INSERT into %s has no value for sharding column %s", i, target, col)
			}
		}
		n, err := tr.Route(values)
		if err != nil {
			return nil, err
		}
		if len(n) != 1 {
			return nil, sherror.New(sherror.SH_MISSING_SHARDING_KEY,
				"row %d of INSERT into %s resolves to %d data nodes", i, target, len(n))
		}
		u, ok := byNode[n[0]]
		if !ok {
			u = &route.Unit{
				DataSource:   n[0].DataSource,
				TableMappers: []route.TableMapper{{LogicalTable: tr.LogicalTable, ActualTable: n[0].Table}},
			}
			byNode[n[0]] = u
			units = append(units, u)
		}
		u.InsertRows = append(u.InsertRows, i)
	}
	return route.NewContext(units, typeOf(units, false)), nil
}

func containsNode(nodes []shrule.DataNode, n shrule.DataNode) bool {
	for _, m := range nodes {
		if m == n {
			return true
		}
	}
	return false
}

func intersectStrings(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range b {
		set[s] = struct{}{}
	}
	var res []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			res = append(res, s)
		}
	}
	return res
}

func names(tables []*shrule.TableRule) []string {
	res := make([]string, 0, len(tables))
	for _, t := range tables {
		res = append(res, t.LogicalTable)
	}
	return res
}
