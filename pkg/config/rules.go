package config

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	AlgorithmHashMod       = "hash_mod"
	AlgorithmRange         = "range"
	AlgorithmInline        = "inline"
	AlgorithmComplexInline = "complex_inline"
)

type RulesCfg struct {
	DataSources       []string          `json:"data_sources" toml:"data_sources" yaml:"data_sources"`
	DefaultDataSource string            `json:"default_data_source" toml:"default_data_source" yaml:"default_data_source"`
	BroadcastTables   []string          `json:"broadcast_tables" toml:"broadcast_tables" yaml:"broadcast_tables"`
	BindingGroups     [][]string        `json:"binding_groups" toml:"binding_groups" yaml:"binding_groups"`
	UnshardedTables   map[string]string `json:"unsharded_tables" toml:"unsharded_tables" yaml:"unsharded_tables"`

	Tables map[string]*TableRuleCfg `json:"tables" toml:"tables" yaml:"tables"`
}

type TableRuleCfg struct {
	// Inline expression, e.g. "ds_${0..1}.t_order_${0..3}".
	DataNodes        string       `json:"data_nodes" toml:"data_nodes" yaml:"data_nodes"`
	DatabaseStrategy *StrategyCfg `json:"database_strategy" toml:"database_strategy" yaml:"database_strategy"`
	TableStrategy    *StrategyCfg `json:"table_strategy" toml:"table_strategy" yaml:"table_strategy"`
}

type StrategyCfg struct {
	Columns   []string     `json:"columns" toml:"columns" yaml:"columns"`
	Algorithm AlgorithmCfg `json:"algorithm" toml:"algorithm" yaml:"algorithm"`
}

type AlgorithmCfg struct {
	Type         string        `json:"type" toml:"type" yaml:"type"`
	Count        int           `json:"count" toml:"count" yaml:"count"`
	HashFunction string        `json:"hash_function" toml:"hash_function" yaml:"hash_function"`
	ColumnType   string        `json:"column_type" toml:"column_type" yaml:"column_type"`
	Expression   string        `json:"expression" toml:"expression" yaml:"expression"`
	Ranges       []KeyRangeCfg `json:"ranges" toml:"ranges" yaml:"ranges"`
}

type KeyRangeCfg struct {
	ID         string `json:"id" toml:"id" yaml:"id"`
	LowerBound string `json:"lower_bound" toml:"lower_bound" yaml:"lower_bound"`
	Target     string `json:"target" toml:"target" yaml:"target"`
}

// Validate performs the structural checks that need no rule evaluation.
// Semantic checks (node expansion, binding group shape) happen when the
// rule set is built.
func (r *RulesCfg) Validate() error {
	if len(r.DataSources) == 0 && len(r.Tables) > 0 {
		return errors.New("rules: data_sources must not be empty")
	}
	known := map[string]struct{}{}
	for _, ds := range r.DataSources {
		if _, ok := known[ds]; ok {
			return errors.Errorf("rules: duplicate data source %q", ds)
		}
		known[ds] = struct{}{}
	}
	if r.DefaultDataSource != "" {
		if _, ok := known[r.DefaultDataSource]; !ok {
			return errors.Errorf("rules: default data source %q is not declared", r.DefaultDataSource)
		}
	}
	for table, ds := range r.UnshardedTables {
		if _, ok := known[ds]; !ok {
			return errors.Errorf("rules: unsharded table %q placed on unknown data source %q", table, ds)
		}
	}
	for name, t := range r.Tables {
		if t == nil || strings.TrimSpace(t.DataNodes) == "" {
			return errors.Errorf("rules: table %q has no data_nodes", name)
		}
		for _, s := range []*StrategyCfg{t.DatabaseStrategy, t.TableStrategy} {
			if s == nil {
				continue
			}
			if err := s.validate(); err != nil {
				return errors.Wrapf(err, "rules: table %q", name)
			}
		}
	}
	return nil
}

func (s *StrategyCfg) validate() error {
	if len(s.Columns) == 0 {
		return errors.New("strategy without sharding columns")
	}
	switch s.Algorithm.Type {
	case AlgorithmHashMod:
		if s.Algorithm.Count <= 0 {
			return errors.New("hash_mod requires positive count")
		}
	case AlgorithmRange:
		if len(s.Algorithm.Ranges) == 0 {
			return errors.New("range requires at least one key range")
		}
	case AlgorithmInline, AlgorithmComplexInline:
		if s.Algorithm.Expression == "" {
			return errors.New("inline requires expression")
		}
	default:
		return errors.Errorf("unknown algorithm type %q", s.Algorithm.Type)
	}
	return nil
}
