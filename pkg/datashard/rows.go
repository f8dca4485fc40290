package datashard

import (
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// rowStream adapts *sqlx.Rows to executor.RowStream.
type rowStream struct {
	rows    *sqlx.Rows
	columns []string
	// true where the driver may hand a number over as text
	numeric []bool
	row     []any
	err     error
}

func newRowStream(rows *sqlx.Rows) (*rowStream, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	r := &rowStream{rows: rows, columns: cols, numeric: make([]bool, len(cols))}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	for i, ct := range types {
		if i < len(r.numeric) {
			r.numeric[i] = isNumericType(ct.DatabaseTypeName())
		}
	}
	return r, nil
}

func (r *rowStream) Columns() []string {
	return r.columns
}

func (r *rowStream) Next() bool {
	if r.err != nil || !r.rows.Next() {
		r.row = nil
		return false
	}
	r.row, r.err = r.rows.SliceScan()
	if r.err != nil {
		return false
	}
	for i, v := range r.row {
		if i < len(r.numeric) && r.numeric[i] {
			r.row[i] = numericValue(v)
		}
	}
	return true
}

func (r *rowStream) Row() []any {
	return r.row
}

func (r *rowStream) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *rowStream) Close() error {
	return r.rows.Close()
}

var numericTypes = map[string]struct{}{
	"NUMERIC": {}, "DECIMAL": {}, "DEC": {},
	"INT": {}, "INTEGER": {}, "INT2": {}, "INT4": {}, "INT8": {},
	"TINYINT": {}, "SMALLINT": {}, "MEDIUMINT": {}, "BIGINT": {},
	"REAL": {}, "FLOAT": {}, "FLOAT4": {}, "FLOAT8": {},
	"DOUBLE": {}, "DOUBLE PRECISION": {},
}

// isNumericType reports whether a driver type name such as "NUMERIC",
// "DECIMAL(10,2)" or "UNSIGNED BIGINT" names a number.
func isNumericType(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimPrefix(name, "UNSIGNED ")
	name = strings.TrimSuffix(name, " UNSIGNED")
	_, ok := numericTypes[name]
	return ok
}

// numericValue turns the text form of a number into int64 or float64.
// Values that do not parse are returned unchanged.
func numericValue(v any) any {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return v
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return v
}
