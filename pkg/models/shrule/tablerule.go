package shrule

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
)

// DataNode is one physical table on one data source.
type DataNode struct {
	DataSource string
	Table      string
}

func (n DataNode) String() string {
	return n.DataSource + "." + n.Table
}

type Strategy struct {
	Columns   []string
	Algorithm Algorithm
}

func newStrategy(cfg *config.StrategyCfg) (*Strategy, error) {
	if cfg == nil {
		return nil, nil
	}
	alg, err := NewAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	s := &Strategy{Algorithm: alg}
	for _, c := range cfg.Columns {
		s.Columns = append(s.Columns, strings.ToLower(c))
	}
	if in, ok := alg.(*InlineAlgorithm); ok {
		for _, col := range in.Columns() {
			if !containsString(s.Columns, col) {
				return nil, fmt.Errorf("inline expression uses column %q which is not a sharding column", col)
			}
		}
	}
	return s, nil
}

// targets narrows available using values. A nil strategy, or a strategy
// with an unconstrained column, keeps every target.
func (s *Strategy) targets(available []string, values map[string]ShardingValue) ([]string, error) {
	if s == nil {
		return available, nil
	}
	svs := make([]ShardingValue, 0, len(s.Columns))
	for _, col := range s.Columns {
		sv, ok := values[col]
		if !ok {
			return available, nil
		}
		svs = append(svs, sv)
	}
	return s.Algorithm.DoSharding(available, svs)
}

type TableRule struct {
	LogicalTable     string
	DataNodes        []DataNode
	DatabaseStrategy *Strategy
	TableStrategy    *Strategy

	dataSources []string
	tablesByDS  map[string][]string
}

func NewTableRule(logical string, cfg *config.TableRuleCfg) (*TableRule, error) {
	logical = strings.ToLower(logical)
	names, err := ExpandInline(cfg.DataNodes)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", logical, err)
	}

	r := &TableRule{
		LogicalTable: logical,
		tablesByDS:   map[string][]string{},
	}
	seen := map[DataNode]struct{}{}
	for _, name := range names {
		ds, table, ok := strings.Cut(name, ".")
		if !ok {
			table = logical
		}
		node := DataNode{DataSource: ds, Table: strings.ToLower(table)}
		if _, dup := seen[node]; dup {
			return nil, fmt.Errorf("table %q: duplicate data node %s", logical, node)
		}
		seen[node] = struct{}{}
		if _, ok := r.tablesByDS[ds]; !ok {
			r.dataSources = append(r.dataSources, ds)
		}
		r.tablesByDS[ds] = append(r.tablesByDS[ds], node.Table)
		r.DataNodes = append(r.DataNodes, node)
	}
	if len(r.DataNodes) == 0 {
		return nil, fmt.Errorf("table %q: data nodes expand to nothing", logical)
	}

	if r.DatabaseStrategy, err = newStrategy(cfg.DatabaseStrategy); err != nil {
		return nil, fmt.Errorf("table %q database strategy: %w", logical, err)
	}
	if r.TableStrategy, err = newStrategy(cfg.TableStrategy); err != nil {
		return nil, fmt.Errorf("table %q table strategy: %w", logical, err)
	}
	return r, nil
}

// DataSources lists the data sources holding the table, in declaration order.
func (r *TableRule) DataSources() []string {
	return r.dataSources
}

func (r *TableRule) TablesIn(ds string) []string {
	return r.tablesByDS[ds]
}

// TableIndex is the position of the node's table inside its data source's
// table list, or -1. Bound tables are paired by this index.
func (r *TableRule) TableIndex(node DataNode) int {
	for i, t := range r.tablesByDS[node.DataSource] {
		if t == node.Table {
			return i
		}
	}
	return -1
}

// ShardingColumns lists every column either strategy depends on.
func (r *TableRule) ShardingColumns() []string {
	var cols []string
	for _, s := range []*Strategy{r.DatabaseStrategy, r.TableStrategy} {
		if s == nil {
			continue
		}
		for _, c := range s.Columns {
			if !containsString(cols, c) {
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// Route resolves the data nodes holding the rows matching values.
// values is keyed by lower-case column name. With no usable values the
// full node list is returned.
func (r *TableRule) Route(values map[string]ShardingValue) ([]DataNode, error) {
	dss, err := r.DatabaseStrategy.targets(r.dataSources, values)
	if err != nil {
		return nil, err
	}

	var nodes []DataNode
	for _, ds := range dss {
		tables, err := r.TableStrategy.targets(r.tablesByDS[ds], values)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			nodes = append(nodes, DataNode{DataSource: ds, Table: t})
		}
	}
	if len(nodes) == 0 {
		return nil, sherror.New(sherror.SH_CONFIGURATION,
			"sharding values of table %s resolve to no data node", r.LogicalTable)
	}
	return nodes, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
