package merge

import (
	"container/heap"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// sortKey is a resolved ORDER BY / GROUP BY item.
type sortKey struct {
	idx        int
	desc       bool
	nullsFirst bool
}

func resolveKeys(keys []stmtctx.SortKey, columns []string, nDerived int) ([]sortKey, error) {
	res := make([]sortKey, 0, len(keys))
	for _, k := range keys {
		idx, err := k.Ref.Resolve(columns, nDerived)
		if err != nil {
			return nil, sherror.Wrap(sherror.SH_MERGE_SEMANTIC, err)
		}
		res = append(res, sortKey{idx: idx, desc: k.Desc, nullsFirst: k.NullsFirst})
	}
	return res, nil
}

func compareRows(a, b []any, keys []sortKey) int {
	for _, k := range keys {
		av, bv := a[k.idx], b[k.idx]
		if c, ok := compareNullable(av, bv, k.nullsFirst); ok {
			if c != 0 {
				return c
			}
			continue
		}
		c := compareValues(av, bv)
		if k.desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

type head struct {
	src *source
	row []any
}

type headHeap struct {
	items []head
	keys  []sortKey
}

func (h *headHeap) Len() int { return len(h.items) }

func (h *headHeap) Less(i, j int) bool {
	if c := compareRows(h.items[i].row, h.items[j].row, h.keys); c != 0 {
		return c < 0
	}
	return h.items[i].src.index < h.items[j].src.index
}

func (h *headHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *headHeap) Push(x any) { h.items = append(h.items, x.(head)) }

func (h *headHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// orderByCursor merges sources that are each sorted by keys. Equal rows
// come out in source order.
type orderByCursor struct {
	sources []*source
	h       *headHeap

	started bool
	current *source
	row     []any
	err     error
}

func newOrderByCursor(sources []*source, keys []sortKey) *orderByCursor {
	return &orderByCursor{
		sources: sources,
		h:       &headHeap{keys: keys},
	}
}

// advance pulls the next row of s into the heap.
func (c *orderByCursor) advance(s *source) bool {
	ok, err := s.next()
	if err != nil {
		c.err = err
		return false
	}
	if ok {
		// drivers may reuse the row slice
		row := append([]any(nil), s.rows.Row()...)
		heap.Push(c.h, head{src: s, row: row})
	}
	return true
}

func (c *orderByCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.started {
		c.started = true
		for _, s := range c.sources {
			if !c.advance(s) {
				return false
			}
		}
	} else if c.current != nil {
		if !c.advance(c.current) {
			return false
		}
	}

	if c.h.Len() == 0 {
		c.current, c.row = nil, nil
		return false
	}
	top := heap.Pop(c.h).(head)
	c.current, c.row = top.src, top.row
	return true
}

func (c *orderByCursor) Row() []any {
	return c.row
}

func (c *orderByCursor) Err() error {
	return c.err
}
