package merge

import (
	"math"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/stmtctx"
)

// paginationCursor applies the statement's own OFFSET and LIMIT to the
// merged stream.
type paginationCursor struct {
	in     cursor
	skip   int64
	remain int64
}

func newPaginationCursor(in cursor, pg *stmtctx.Pagination, params []any) (*paginationCursor, error) {
	c := &paginationCursor{in: in, remain: math.MaxInt64}
	var err error
	if pg.Offset != nil {
		if c.skip, err = paginationValue(pg.Offset, params); err != nil {
			return nil, err
		}
	}
	if pg.RowCount != nil {
		if c.remain, err = paginationValue(pg.RowCount, params); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func paginationValue(pv *stmtctx.PaginationValue, params []any) (int64, error) {
	raw, err := pv.Value.Resolve(params)
	if err != nil {
		return 0, sherror.Wrap(sherror.SH_MERGE_SEMANTIC, err)
	}
	n, f, isInt, ok := asNumber(raw)
	if ok && !isInt && f == math.Trunc(f) {
		n, isInt = int64(f), true
	}
	if !ok || !isInt || n < 0 {
		return 0, sherror.New(sherror.SH_MERGE_SEMANTIC, "invalid pagination value %v", raw)
	}
	return n, nil
}

func (c *paginationCursor) Next() bool {
	for c.skip > 0 {
		if !c.in.Next() {
			return false
		}
		c.skip--
	}
	if c.remain <= 0 {
		return false
	}
	if !c.in.Next() {
		return false
	}
	c.remain--
	return true
}

func (c *paginationCursor) Row() []any {
	return c.in.Row()
}

func (c *paginationCursor) Err() error {
	return c.in.Err()
}
