package kr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/hashfunction"
)

// KeyRangeBound is a lower bound normalized to the column type:
// int64 for integer, uint64 for uinteger, string for varchar.
type KeyRangeBound any

// KeyRange covers [LowerBound, next range's LowerBound) and routes to ShardID.
type KeyRange struct {
	ID         string
	LowerBound KeyRangeBound
	ShardID    string
}

// CmpBounds compares two normalized bounds of the same column type.
func CmpBounds(a, b KeyRangeBound) (int, error) {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return cmpOrdered(av, bv), nil
		}
	case uint64:
		if bv, ok := b.(uint64); ok {
			return cmpOrdered(av, bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	}
	return 0, fmt.Errorf("can not compare key range bounds %v (%T) and %v (%T)", a, a, b, b)
}

func cmpOrdered[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func CmpRangesLess(a, b KeyRangeBound) bool {
	c, err := CmpBounds(a, b)
	return err == nil && c < 0
}

func CmpRangesLessEqual(a, b KeyRangeBound) bool {
	c, err := CmpBounds(a, b)
	return err == nil && c <= 0
}

func KeyRangeFromCfg(cfg config.KeyRangeCfg, ctype string) (*KeyRange, error) {
	lower, err := hashfunction.NormalizeValue(cfg.LowerBound, ctype)
	if err != nil {
		return nil, fmt.Errorf("key range %q: %w", cfg.ID, err)
	}
	return &KeyRange{
		ID:         cfg.ID,
		LowerBound: lower,
		ShardID:    cfg.Target,
	}, nil
}

// KeyRangeSet is an ordered, non-overlapping list of key ranges over one
// column type. Values below the first lower bound belong to no range.
type KeyRangeSet struct {
	ColumnType string
	Ranges     []*KeyRange
}

func NewKeyRangeSet(cfgs []config.KeyRangeCfg, ctype string) (*KeyRangeSet, error) {
	set := &KeyRangeSet{ColumnType: ctype}
	for _, c := range cfgs {
		r, err := KeyRangeFromCfg(c, ctype)
		if err != nil {
			return nil, err
		}
		set.Ranges = append(set.Ranges, r)
	}
	sort.SliceStable(set.Ranges, func(i, j int) bool {
		return CmpRangesLess(set.Ranges[i].LowerBound, set.Ranges[j].LowerBound)
	})
	for i := 1; i < len(set.Ranges); i++ {
		if c, _ := CmpBounds(set.Ranges[i-1].LowerBound, set.Ranges[i].LowerBound); c == 0 {
			return nil, fmt.Errorf("key ranges %q and %q share lower bound %v",
				set.Ranges[i-1].ID, set.Ranges[i].ID, set.Ranges[i].LowerBound)
		}
	}
	return set, nil
}

// UpperBound returns the exclusive upper bound of range i, nil for the last one.
func (s *KeyRangeSet) UpperBound(i int) KeyRangeBound {
	if i+1 < len(s.Ranges) {
		return s.Ranges[i+1].LowerBound
	}
	return nil
}

// Locate returns the range holding value, or nil if it is below every range.
func (s *KeyRangeSet) Locate(value any) (*KeyRange, error) {
	v, err := hashfunction.NormalizeValue(value, s.ColumnType)
	if err != nil {
		return nil, err
	}
	idx := sort.Search(len(s.Ranges), func(i int) bool {
		return CmpRangesLess(v, s.Ranges[i].LowerBound)
	}) - 1
	if idx < 0 {
		return nil, nil
	}
	return s.Ranges[idx], nil
}

// Overlapping returns the ranges that intersect the interval between lower
// and upper. A nil end is unbounded. Inclusiveness is ignored, so the answer
// may contain one range more than strictly needed.
func (s *KeyRangeSet) Overlapping(lower, upper any) ([]*KeyRange, error) {
	var lo, hi KeyRangeBound
	var err error
	if lower != nil {
		if lo, err = hashfunction.NormalizeValue(lower, s.ColumnType); err != nil {
			return nil, err
		}
	}
	if upper != nil {
		if hi, err = hashfunction.NormalizeValue(upper, s.ColumnType); err != nil {
			return nil, err
		}
	}

	var res []*KeyRange
	for i, r := range s.Ranges {
		next := s.UpperBound(i)
		if lo != nil && next != nil && CmpRangesLessEqual(next, lo) {
			continue
		}
		if hi != nil && CmpRangesLess(hi, r.LowerBound) {
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

// GetKRCondition renders the predicate selecting the keys of range i, e.g.
// "col >= 0 AND col < 10". It is used for explain output.
func (s *KeyRangeSet) GetKRCondition(column string, i int, prefix string) string {
	if prefix != "" {
		column = prefix + "." + column
	}
	lower := fmt.Sprintf("%s >= %s", column, s.literal(s.Ranges[i].LowerBound))
	upper := s.UpperBound(i)
	if upper == nil {
		return lower
	}
	return fmt.Sprintf("%s AND %s < %s", lower, column, s.literal(upper))
}

func (s *KeyRangeSet) literal(b KeyRangeBound) string {
	if str, ok := b.(string); ok {
		return "'" + strings.ReplaceAll(str, "'", "''") + "'"
	}
	return fmt.Sprintf("%v", b)
}
