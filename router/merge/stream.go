package merge

// streamCursor concatenates sources in unit order.
type streamCursor struct {
	sources []*source
	cur     int
	row     []any
	err     error
}

func newStreamCursor(sources []*source) *streamCursor {
	return &streamCursor{sources: sources}
}

func (c *streamCursor) Next() bool {
	for c.err == nil && c.cur < len(c.sources) {
		s := c.sources[c.cur]
		ok, err := s.next()
		if ok {
			c.row = s.rows.Row()
			return true
		}
		c.err = err
		c.cur++
	}
	c.row = nil
	return false
}

func (c *streamCursor) Row() []any {
	return c.row
}

func (c *streamCursor) Err() error {
	return c.err
}
