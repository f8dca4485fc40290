package shrule

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
)

// RuleSet is the immutable sharding topology. A new RuleSet is built for
// every configuration change and swapped in as a whole.
type RuleSet struct {
	dataSources       []string
	defaultDataSource string

	tables        map[string]*TableRule
	broadcast     map[string]struct{}
	bindingGroups [][]string
	bindingOf     map[string]int
	unsharded     map[string]string
}

func NewRuleSet(cfg *config.RulesCfg) (*RuleSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
	}

	rs := &RuleSet{
		dataSources:       append([]string(nil), cfg.DataSources...),
		defaultDataSource: cfg.DefaultDataSource,
		tables:            map[string]*TableRule{},
		broadcast:         map[string]struct{}{},
		bindingOf:         map[string]int{},
		unsharded:         map[string]string{},
	}

	for name, tcfg := range cfg.Tables {
		tr, err := NewTableRule(name, tcfg)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
		}
		for _, ds := range tr.DataSources() {
			if !rs.HasDataSource(ds) {
				return nil, sherror.New(sherror.SH_CONFIGURATION,
					"table %s references unknown data source %q", tr.LogicalTable, ds)
			}
		}
		rs.tables[tr.LogicalTable] = tr
	}

	for _, t := range cfg.BroadcastTables {
		t = strings.ToLower(t)
		if _, ok := rs.tables[t]; ok {
			return nil, sherror.New(sherror.SH_CONFIGURATION, "table %s is both sharded and broadcast", t)
		}
		rs.broadcast[t] = struct{}{}
	}

	for t, ds := range cfg.UnshardedTables {
		t = strings.ToLower(t)
		if _, ok := rs.tables[t]; ok {
			return nil, sherror.New(sherror.SH_CONFIGURATION, "table %s is both sharded and unsharded", t)
		}
		rs.unsharded[t] = ds
	}

	for i, group := range cfg.BindingGroups {
		if err := rs.addBindingGroup(i, group); err != nil {
			return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
		}
	}
	return rs, nil
}

// addBindingGroup checks that all tables of the group share the same
// data sources and the same number of tables per data source, so that
// pairing by table index is well defined.
func (rs *RuleSet) addBindingGroup(idx int, group []string) error {
	var first *TableRule
	var names []string
	for _, t := range group {
		t = strings.ToLower(t)
		tr, ok := rs.tables[t]
		if !ok {
			return fmt.Errorf("binding group %d: %s is not a sharded table", idx, t)
		}
		if _, dup := rs.bindingOf[t]; dup {
			return fmt.Errorf("binding group %d: %s already belongs to a binding group", idx, t)
		}
		if first == nil {
			first = tr
		} else if !sameShape(first, tr) {
			return fmt.Errorf("binding group %d: %s and %s have different data node layouts",
				idx, first.LogicalTable, tr.LogicalTable)
		}
		rs.bindingOf[t] = len(rs.bindingGroups)
		names = append(names, t)
	}
	rs.bindingGroups = append(rs.bindingGroups, names)
	return nil
}

func sameShape(a, b *TableRule) bool {
	if len(a.dataSources) != len(b.dataSources) {
		return false
	}
	for _, ds := range a.dataSources {
		if len(a.tablesByDS[ds]) != len(b.tablesByDS[ds]) {
			return false
		}
	}
	return true
}

func (rs *RuleSet) DataSources() []string {
	return rs.dataSources
}

func (rs *RuleSet) HasDataSource(ds string) bool {
	return containsString(rs.dataSources, ds)
}

// DefaultDataSource returns the configured default, or false if none is set.
func (rs *RuleSet) DefaultDataSource() (string, bool) {
	return rs.defaultDataSource, rs.defaultDataSource != ""
}

func (rs *RuleSet) TableRule(table string) (*TableRule, bool) {
	tr, ok := rs.tables[strings.ToLower(table)]
	return tr, ok
}

func (rs *RuleSet) IsBroadcast(table string) bool {
	_, ok := rs.broadcast[strings.ToLower(table)]
	return ok
}

// UnshardedDataSource returns the data source of a table that is neither
// sharded nor broadcast: its explicit placement, else the default.
func (rs *RuleSet) UnshardedDataSource(table string) (string, bool) {
	if ds, ok := rs.unsharded[strings.ToLower(table)]; ok {
		return ds, true
	}
	return rs.DefaultDataSource()
}

// BindingGroupOf returns the binding group id of a sharded table.
func (rs *RuleSet) BindingGroupOf(table string) (int, bool) {
	g, ok := rs.bindingOf[strings.ToLower(table)]
	return g, ok
}

func (rs *RuleSet) BindingGroups() [][]string {
	return rs.bindingGroups
}

func (rs *RuleSet) ShardedTables() []string {
	names := make([]string, 0, len(rs.tables))
	for t := range rs.tables {
		names = append(names, t)
	}
	return sortedUnique(names)
}
