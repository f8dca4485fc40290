package shrule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/hashfunction"
	"github.com/pg-sharding/shardsql/pkg/models/kr"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
)

// ShardingValue is what a statement says about one sharding column:
// either a finite set of values (equality, IN) or an interval.
type ShardingValue struct {
	Column string
	Values []any

	IsRange bool
	// nil means unbounded
	Lower any
	Upper any
}

// Algorithm maps sharding values onto a subset of the available targets
// (data source names for a database strategy, table names for a table
// strategy). A target computed by the algorithm but absent from available
// is dropped.
type Algorithm interface {
	DoSharding(available []string, values []ShardingValue) ([]string, error)
}

func NewAlgorithm(cfg config.AlgorithmCfg) (Algorithm, error) {
	switch cfg.Type {
	case config.AlgorithmHashMod:
		hf, err := hashfunction.HashFunctionByName(cfg.HashFunction)
		if err != nil {
			return nil, err
		}
		return &HashModAlgorithm{Count: cfg.Count, HashFunction: hf, ColumnType: cfg.ColumnType}, nil
	case config.AlgorithmRange:
		ctype := cfg.ColumnType
		if ctype == "" {
			ctype = hashfunction.ColumnTypeInteger
		}
		set, err := kr.NewKeyRangeSet(cfg.Ranges, ctype)
		if err != nil {
			return nil, err
		}
		return &RangeAlgorithm{Ranges: set}, nil
	case config.AlgorithmInline, config.AlgorithmComplexInline:
		t, err := compileTemplate(cfg.Expression)
		if err != nil {
			return nil, err
		}
		if cfg.Type == config.AlgorithmInline && len(t.columns) > 1 {
			return nil, fmt.Errorf("inline expression %q uses %d columns, use complex_inline", cfg.Expression, len(t.columns))
		}
		return &InlineAlgorithm{Expression: cfg.Expression, tmpl: t}, nil
	}
	return nil, fmt.Errorf("unknown algorithm type %q", cfg.Type)
}

// HashModAlgorithm sends a value to the target whose numeric suffix equals
// hash(value) % Count, e.g. bucket 1 -> "ds_1" or "t_order_1".
type HashModAlgorithm struct {
	Count        int
	HashFunction hashfunction.HashFunctionType
	ColumnType   string
}

func (a *HashModAlgorithm) DoSharding(available []string, values []ShardingValue) ([]string, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("hash_mod expects one sharding column, got %d", len(values))
	}
	sv := values[0]
	if sv.IsRange {
		return available, nil
	}

	buckets := map[int]struct{}{}
	for _, v := range sv.Values {
		b, err := hashfunction.Bucket(v, a.ColumnType, a.HashFunction, a.Count)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
		}
		buckets[b] = struct{}{}
	}

	var res []string
	for _, target := range available {
		idx, ok := numericSuffix(target)
		if !ok {
			continue
		}
		if _, ok := buckets[idx%a.Count]; ok {
			res = append(res, target)
		}
	}
	return res, nil
}

func numericSuffix(name string) (int, bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, false
	}
	n, err := strconv.Atoi(name[i:])
	return n, err == nil
}

// RangeAlgorithm routes by key ranges: a value goes to the target of the
// range holding it.
type RangeAlgorithm struct {
	Ranges *kr.KeyRangeSet
}

func (a *RangeAlgorithm) DoSharding(available []string, values []ShardingValue) ([]string, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("range expects one sharding column, got %d", len(values))
	}
	sv := values[0]

	var ranges []*kr.KeyRange
	if sv.IsRange {
		rs, err := a.Ranges.Overlapping(sv.Lower, sv.Upper)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
		}
		ranges = rs
	} else {
		for _, v := range sv.Values {
			r, err := a.Ranges.Locate(v)
			if err != nil {
				return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
			}
			if r == nil {
				return nil, sherror.New(sherror.SH_CONFIGURATION,
					"no key range holds value %v of column %s", v, sv.Column)
			}
			ranges = append(ranges, r)
		}
	}

	wanted := map[string]struct{}{}
	for _, r := range ranges {
		wanted[r.ShardID] = struct{}{}
	}
	return filterAvailable(available, wanted), nil
}

// InlineAlgorithm evaluates a template such as "t_order_${order_id % 4}".
// With several columns the Cartesian product of their values is evaluated.
type InlineAlgorithm struct {
	Expression string
	tmpl       *template
}

func (a *InlineAlgorithm) Columns() []string {
	return a.tmpl.columns
}

func (a *InlineAlgorithm) DoSharding(available []string, values []ShardingValue) ([]string, error) {
	byColumn := map[string]ShardingValue{}
	for _, sv := range values {
		if sv.IsRange {
			return available, nil
		}
		byColumn[strings.ToLower(sv.Column)] = sv
	}

	bindings := []map[string]any{{}}
	for _, col := range a.tmpl.columns {
		sv, ok := byColumn[col]
		if !ok {
			return available, nil
		}
		next := make([]map[string]any, 0, len(bindings)*len(sv.Values))
		for _, b := range bindings {
			for _, v := range sv.Values {
				nb := make(map[string]any, len(b)+1)
				for k, bv := range b {
					nb[k] = bv
				}
				nb[col] = v
				next = append(next, nb)
			}
		}
		bindings = next
	}

	wanted := map[string]struct{}{}
	for _, b := range bindings {
		name, err := a.tmpl.render(b)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
		}
		wanted[name] = struct{}{}
	}
	return filterAvailable(available, wanted), nil
}

func filterAvailable(available []string, wanted map[string]struct{}) []string {
	res := make([]string, 0, len(wanted))
	for _, target := range available {
		if _, ok := wanted[target]; ok {
			res = append(res, target)
		}
	}
	return res
}

func toInt64(v any) (int64, error) {
	n, err := hashfunction.NormalizeValue(v, hashfunction.ColumnTypeInteger)
	if err != nil {
		return 0, err
	}
	return n.(int64), nil
}

func sortedUnique(in []string) []string {
	seen := map[string]struct{}{}
	res := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		res = append(res, s)
	}
	sort.Strings(res)
	return res
}
