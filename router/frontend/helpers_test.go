package frontend_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pg-sharding/shardsql/router/frontend"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/stretchr/testify/require"
)

// span returns the offsets of the nth occurrence of sub in sql.
func span(t *testing.T, sql, sub string, nth int) (int, int) {
	t.Helper()
	pos := 0
	for i := 0; ; i++ {
		idx := strings.Index(sql[pos:], sub)
		require.True(t, idx >= 0, "%q not found in %q", sub, sql)
		if i == nth {
			return pos + idx, pos + idx + len(sub)
		}
		pos += idx + len(sub)
	}
}

func tableRef(t *testing.T, sql, name string) []stmtctx.TableRef {
	start, stop := span(t, sql, name+" ", 0)
	return []stmtctx.TableRef{{Name: name, Start: start, Stop: stop - 1}}
}

func placeholders(sql string) []stmtctx.Placeholder {
	var res []stmtctx.Placeholder
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			res = append(res, stmtctx.Placeholder{Start: i, Stop: i + 1, Param: len(res) + 1})
		}
	}
	return res
}

func queryRows(t *testing.T, f *frontend.Frontend, stmt *stmtctx.Statement) [][]any {
	t.Helper()
	res, err := f.Query(context.Background(), stmt)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.Close()) }()

	require.False(t, res.IsUpdateCount())
	var rows [][]any
	for res.Next() {
		rows = append(rows, append([]any(nil), res.Row()...))
	}
	require.NoError(t, res.Err())
	return rows
}

func execCount(t *testing.T, f *frontend.Frontend, stmt *stmtctx.Statement) int64 {
	t.Helper()
	res, err := f.Query(context.Background(), stmt)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.Close()) }()

	require.True(t, res.IsUpdateCount())
	return res.RowsAffected()
}
