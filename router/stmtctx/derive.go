package stmtctx

import (
	"fmt"
	"strings"
)

const (
	OrderByDerivedPrefix  = "ORDER_BY_DERIVED_"
	GroupByDerivedPrefix  = "GROUP_BY_DERIVED_"
	AvgDerivedCountPrefix = "AVG_DERIVED_COUNT_"
	AvgDerivedSumPrefix   = "AVG_DERIVED_SUM_"
)

// ColumnRef locates a column in the rows returned by a backend.
type ColumnRef struct {
	Label string
	// position among the projections, -1 when a star precedes it
	Index int
	// set for projections appended by DeriveProjections
	Derived      bool
	DerivedIndex int
}

// Resolve finds the column in a row with the given column labels.
// nDerived is the number of derived columns at the end of the row.
func (r ColumnRef) Resolve(columns []string, nDerived int) (int, error) {
	switch {
	case r.Derived:
		idx := len(columns) - nDerived + r.DerivedIndex
		if idx < 0 || idx >= len(columns) {
			return 0, fmt.Errorf("derived column %s is missing from result", r.Label)
		}
		return idx, nil
	case r.Index >= 0:
		if r.Index >= len(columns)-nDerived {
			return 0, fmt.Errorf("column %s is missing from result", r.Label)
		}
		return r.Index, nil
	}
	for i, c := range columns[:len(columns)-nDerived] {
		if strings.EqualFold(c, r.Label) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %s is missing from result", r.Label)
}

type SortKey struct {
	Ref        ColumnRef
	Desc       bool
	NullsFirst bool
}

type AggregateRef struct {
	Type AggregateType
	Ref  ColumnRef
	// AVG only
	Count ColumnRef
	Sum   ColumnRef
}

// Derivation is what a multi-target SELECT needs beyond the written
// projections so that partial results can be merged.
type Derivation struct {
	// appended after the written projections, in this order
	Derived []Projection

	OrderBy    []SortKey
	GroupBy    []SortKey
	Aggregates []AggregateRef

	// ORDER BY over the group columns has to be appended to the text
	OrderByGroupColumns bool
}

// DeriveProjections computes the derived projections of a SELECT. It is
// used by both the rewriter (to add them) and the merger (to use and then
// hide them), so both always agree on labels and positions.
func DeriveProjections(stmt *Statement) *Derivation {
	d := &Derivation{}
	if stmt.Kind != KindSelect {
		return d
	}

	derive := func(prefix string, n int, expr string) ColumnRef {
		alias := fmt.Sprintf("%s%d", prefix, n)
		d.Derived = append(d.Derived, Projection{Expression: expr, Alias: alias})
		return ColumnRef{Label: alias, Index: -1, Derived: true, DerivedIndex: len(d.Derived) - 1}
	}

	// aggregates ordered on but not projected
	type orderAggregate struct {
		typ AggregateType
		arg string
		ref ColumnRef
	}
	var orderAggs []orderAggregate

	orderN := 0
	for _, item := range stmt.OrderBy {
		ref, ok := findProjection(stmt.Projections, item.Column)
		if !ok {
			ref = derive(OrderByDerivedPrefix, orderN, item.Column)
			orderN++
			if typ, arg, isAgg := ParseAggregateCall(item.Column); isAgg {
				orderAggs = append(orderAggs, orderAggregate{typ: typ, arg: arg, ref: ref})
			}
		}
		d.OrderBy = append(d.OrderBy, SortKey{Ref: ref, Desc: item.Desc, NullsFirst: item.NullsFirst})
	}

	groupN := 0
	for _, item := range stmt.GroupBy {
		ref, ok := findProjection(stmt.Projections, item.Column)
		if !ok {
			ref, ok = findDerived(d.Derived, item.Column)
		}
		if !ok {
			ref = derive(GroupByDerivedPrefix, groupN, item.Column)
			groupN++
		}
		d.GroupBy = append(d.GroupBy, SortKey{Ref: ref, Desc: item.Desc, NullsFirst: item.NullsFirst})
	}
	if len(stmt.GroupBy) > 0 && len(stmt.OrderBy) == 0 {
		d.OrderByGroupColumns = true
		d.OrderBy = d.GroupBy
	}

	avgN := 0
	star := false
	for i, p := range stmt.Projections {
		if p.IsStar() {
			star = true
		}
		if p.Aggregate == AggregateNone {
			continue
		}
		agg := AggregateRef{Type: p.Aggregate, Ref: ColumnRef{Label: p.Label(), Index: i}}
		if star {
			agg.Ref.Index = -1
		}
		if p.Aggregate == AggregateAvg {
			agg.Count = derive(AvgDerivedCountPrefix, avgN, "COUNT("+p.Argument+")")
			agg.Sum = derive(AvgDerivedSumPrefix, avgN, "SUM("+p.Argument+")")
			avgN++
		}
		d.Aggregates = append(d.Aggregates, agg)
	}

	for _, oa := range orderAggs {
		agg := AggregateRef{Type: oa.typ, Ref: oa.ref}
		if oa.typ == AggregateAvg {
			agg.Count = derive(AvgDerivedCountPrefix, avgN, "COUNT("+oa.arg+")")
			agg.Sum = derive(AvgDerivedSumPrefix, avgN, "SUM("+oa.arg+")")
			avgN++
		}
		d.Aggregates = append(d.Aggregates, agg)
	}
	return d
}

// ParseAggregateCall recognizes COUNT, SUM, AVG, MIN and MAX calls such as
// "sum(amount)" and returns the aggregate and its argument.
func ParseAggregateCall(expr string) (AggregateType, string, bool) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return AggregateNone, "", false
	}
	arg := strings.TrimSpace(expr[open+1 : len(expr)-1])
	if arg == "" {
		return AggregateNone, "", false
	}
	name := strings.ToUpper(strings.TrimSpace(expr[:open]))
	for _, typ := range []AggregateType{AggregateCount, AggregateSum, AggregateAvg, AggregateMin, AggregateMax} {
		if typ.String() == name {
			return typ, arg, true
		}
	}
	return AggregateNone, "", false
}

// findProjection matches an ORDER BY / GROUP BY column against the written
// projections: by alias, by expression, or through a star.
func findProjection(projections []Projection, column string) (ColumnRef, bool) {
	star := false
	bare := unqualified(column)
	for i, p := range projections {
		if p.IsStar() {
			if p.Expression == "*" || strings.EqualFold(strings.TrimSuffix(p.Expression, ".*"), qualifier(column)) || qualifier(column) == "" {
				return ColumnRef{Label: bare, Index: -1}, true
			}
			star = true
			continue
		}
		if strings.EqualFold(p.Alias, column) || strings.EqualFold(p.Expression, column) ||
			(p.Alias == "" && p.Aggregate == AggregateNone && strings.EqualFold(unqualified(p.Expression), bare) &&
				(qualifier(p.Expression) == "" || qualifier(column) == "" || strings.EqualFold(qualifier(p.Expression), qualifier(column)))) {
			ref := ColumnRef{Label: p.Label(), Index: i}
			if star {
				ref.Index = -1
			}
			return ref, true
		}
	}
	return ColumnRef{}, false
}

func findDerived(derived []Projection, column string) (ColumnRef, bool) {
	for i, p := range derived {
		if strings.EqualFold(p.Expression, column) {
			return ColumnRef{Label: p.Alias, Index: -1, Derived: true, DerivedIndex: i}, true
		}
	}
	return ColumnRef{}, false
}

func qualifier(col string) string {
	if strings.ContainsAny(col, "()") {
		return ""
	}
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		return col[:i]
	}
	return ""
}
