package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

type aggregate struct {
	typ stmtctx.AggregateType
	idx int

	// AVG only
	countIdx int
	sumIdx   int
}

func resolveAggregates(aggs []stmtctx.AggregateRef, columns []string, nDerived int) ([]aggregate, error) {
	res := make([]aggregate, 0, len(aggs))
	for _, a := range aggs {
		idx, err := a.Ref.Resolve(columns, nDerived)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_MERGE_SEMANTIC, err)
		}
		agg := aggregate{typ: a.Type, idx: idx}
		if a.Type == stmtctx.AggregateAvg {
			if agg.countIdx, err = a.Count.Resolve(columns, nDerived); err != nil {
				return nil, sherror.Wrap(sherror.SH_MERGE_SEMANTIC, err)
			}
			if agg.sumIdx, err = a.Sum.Resolve(columns, nDerived); err != nil {
				return nil, sherror.Wrap(sherror.SH_MERGE_SEMANTIC, err)
			}
		}
		res = append(res, agg)
	}
	return res, nil
}

// accumulator folds the partial rows of one group. Columns that are
// neither aggregated nor derived keep the values of the first row.
type accumulator struct {
	aggs   []aggregate
	row    []any
	values []any
	counts []any
}

func newAccumulator(first []any, aggs []aggregate) *accumulator {
	return &accumulator{
		aggs:   aggs,
		row:    append([]any(nil), first...),
		values: make([]any, len(aggs)),
		counts: make([]any, len(aggs)),
	}
}

func (a *accumulator) add(row []any) error {
	for i, agg := range a.aggs {
		var err error
		switch agg.typ {
		case stmtctx.AggregateCount, stmtctx.AggregateSum:
			a.values[i], err = addValues(a.values[i], row[agg.idx])
		case stmtctx.AggregateMin, stmtctx.AggregateMax:
			v := row[agg.idx]
			if v == nil {
				continue
			}
			if a.values[i] == nil {
				a.values[i] = v
				continue
			}
			c := compareValues(v, a.values[i])
			if (agg.typ == stmtctx.AggregateMin && c < 0) || (agg.typ == stmtctx.AggregateMax && c > 0) {
				a.values[i] = v
			}
		case stmtctx.AggregateAvg:
			if a.values[i], err = addValues(a.values[i], row[agg.sumIdx]); err == nil {
				a.counts[i], err = addValues(a.counts[i], row[agg.countIdx])
			}
		}
		if err != nil {
			return sherror.New(sherror.SH_MERGE_SEMANTIC, "%s: %v", agg.typ, err)
		}
	}
	return nil
}

func (a *accumulator) result() []any {
	for i, agg := range a.aggs {
		if agg.typ != stmtctx.AggregateAvg {
			a.row[agg.idx] = a.values[i]
			continue
		}
		a.row[agg.sumIdx] = a.values[i]
		a.row[agg.countIdx] = a.counts[i]

		_, sum, _, sok := asNumber(a.values[i])
		_, count, _, cok := asNumber(a.counts[i])
		if !sok || !cok || count == 0 {
			a.row[agg.idx] = nil
			continue
		}
		a.row[agg.idx] = sum / count
	}
	return a.row
}

func sameGroup(a, b []any, keys []sortKey) bool {
	for _, k := range keys {
		av, bv := a[k.idx], b[k.idx]
		if c, ok := compareNullable(av, bv, false); ok {
			if c != 0 {
				return false
			}
			continue
		}
		if compareValues(av, bv) != 0 {
			return false
		}
	}
	return true
}

// streamGroupCursor groups input that is already sorted by the group key.
type streamGroupCursor struct {
	in   cursor
	keys []sortKey
	aggs []aggregate

	pending []any
	done    bool
	row     []any
	err     error
}

func newStreamGroupCursor(in cursor, keys []sortKey, aggs []aggregate) *streamGroupCursor {
	return &streamGroupCursor{in: in, keys: keys, aggs: aggs}
}

func (c *streamGroupCursor) Next() bool {
	if c.err != nil || (c.done && c.pending == nil) {
		return false
	}
	if c.pending == nil {
		if !c.in.Next() {
			c.done = true
			c.err = c.in.Err()
			return false
		}
		c.pending = append([]any(nil), c.in.Row()...)
	}

	acc := newAccumulator(c.pending, c.aggs)
	if c.err = acc.add(c.pending); c.err != nil {
		return false
	}
	c.pending = nil
	for c.in.Next() {
		r := c.in.Row()
		if !sameGroup(acc.row, r, c.keys) {
			c.pending = append([]any(nil), r...)
			break
		}
		if c.err = acc.add(r); c.err != nil {
			return false
		}
	}
	if c.pending == nil {
		c.done = true
		if c.err = c.in.Err(); c.err != nil {
			return false
		}
	}
	c.row = acc.result()
	return true
}

func (c *streamGroupCursor) Row() []any {
	return c.row
}

func (c *streamGroupCursor) Err() error {
	return c.err
}

// memoryGroupCursor reads the whole input, groups it in a map and sorts
// the groups by the ORDER BY keys. Without group keys every row falls
// into one group.
type memoryGroupCursor struct {
	in        cursor
	keys      []sortKey
	orderKeys []sortKey
	aggs      []aggregate

	loaded bool
	rows   [][]any
	pos    int
	err    error
}

func newMemoryGroupCursor(in cursor, keys, orderKeys []sortKey, aggs []aggregate) *memoryGroupCursor {
	return &memoryGroupCursor{in: in, keys: keys, orderKeys: orderKeys, aggs: aggs}
}

func (c *memoryGroupCursor) load() error {
	groups := map[string]*accumulator{}
	var order []*accumulator
	for c.in.Next() {
		r := c.in.Row()
		key := groupKey(r, c.keys)
		acc, ok := groups[key]
		if !ok {
			acc = newAccumulator(r, c.aggs)
			groups[key] = acc
			order = append(order, acc)
		}
		if err := acc.add(r); err != nil {
			return err
		}
	}
	if err := c.in.Err(); err != nil {
		return err
	}

	c.rows = make([][]any, 0, len(order))
	for _, acc := range order {
		c.rows = append(c.rows, acc.result())
	}
	if len(c.orderKeys) > 0 {
		sort.SliceStable(c.rows, func(i, j int) bool {
			return compareRows(c.rows[i], c.rows[j], c.orderKeys) < 0
		})
	}
	return nil
}

func (c *memoryGroupCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.loaded {
		c.loaded = true
		if c.err = c.load(); c.err != nil {
			return false
		}
	}
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *memoryGroupCursor) Row() []any {
	if c.pos == 0 || c.pos > len(c.rows) {
		return nil
	}
	return c.rows[c.pos-1]
}

func (c *memoryGroupCursor) Err() error {
	return c.err
}

func groupKey(row []any, keys []sortKey) string {
	var sb strings.Builder
	for _, k := range keys {
		v := row[k.idx]
		if v == nil {
			sb.WriteString("n")
		} else if i, ok := asInt(v); ok {
			fmt.Fprintf(&sb, "i%d", i)
		} else if f, ok := asFloat(v); ok {
			fmt.Fprintf(&sb, "f%v", f)
		} else {
			switch v.(type) {
			case string, []byte:
				sb.WriteString("s")
				sb.WriteString(asText(v))
			default:
				fmt.Fprintf(&sb, "%T%v", v, v)
			}
		}
		sb.WriteByte(0)
	}
	return sb.String()
}
