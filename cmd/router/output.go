package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/merge"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/pkg/errors"
)

type rowSource interface {
	Columns() []string
	Next() bool
	Row() []any
	Err() error
}

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// reply is one line of output, a result set, an update count or an error.
type reply struct {
	Columns      []string    `json:"columns,omitempty"`
	Rows         *[][]any    `json:"rows,omitempty"`
	RowsAffected *int64      `json:"rows_affected,omitempty"`
	Error        *errorReply `json:"error,omitempty"`
}

func collectRows(rs rowSource) (*reply, error) {
	rows := [][]any{}
	for rs.Next() {
		row := make([]any, len(rs.Row()))
		for i, v := range rs.Row() {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return &reply{Columns: rs.Columns(), Rows: &rows}, rs.Err()
}

func resultReply(res *merge.MergedResult) (*reply, error) {
	defer func() { _ = res.Close() }()
	if res.IsUpdateCount() {
		n := res.RowsAffected()
		return &reply{RowsAffected: &n}, nil
	}
	return collectRows(res)
}

func errReply(err error) *reply {
	var se *sherror.ShardError
	if errors.As(err, &se) {
		return &reply{Error: &errorReply{Code: se.ErrorCode, Message: se.Error()}}
	}
	return &reply{Error: &errorReply{Code: sherror.SH_UNEXPECTED, Message: err.Error()}}
}

func writeReply(w io.Writer, rep *reply) error {
	return json.NewEncoder(w).Encode(rep)
}

func writeRows(w io.Writer, rs rowSource) error {
	rep, err := collectRows(rs)
	if err != nil {
		return err
	}
	return writeReply(w, rep)
}

func writeResult(w io.Writer, res *merge.MergedResult) error {
	rep, err := resultReply(res)
	if err != nil {
		return err
	}
	return writeReply(w, rep)
}

type querier interface {
	Query(ctx context.Context, stmt *stmtctx.Statement) (*merge.MergedResult, error)
}

// serve answers every JSON statement read from in with one reply line.
// A failed statement produces an error reply and does not stop serving.
func serve(ctx context.Context, q querier, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()

	stmts := make(chan *stmtctx.Statement)
	decodeErr := make(chan error, 1)
	go func() {
		defer close(stmts)
		for {
			stmt := &stmtctx.Statement{}
			if err := dec.Decode(stmt); err != nil {
				if err != io.EOF {
					decodeErr <- errors.Wrap(err, "failed to decode statement")
				}
				return
			}
			select {
			case stmts <- stmt:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case stmt, ok := <-stmts:
			if !ok {
				select {
				case err := <-decodeErr:
					return err
				default:
					return nil
				}
			}
			rep := answer(ctx, q, stmt)
			if err := writeReply(out, rep); err != nil {
				return err
			}
		}
	}
}

func answer(ctx context.Context, q querier, stmt *stmtctx.Statement) *reply {
	res, err := q.Query(ctx, stmt)
	if err != nil {
		return errReply(err)
	}
	rep, err := resultReply(res)
	if err != nil {
		return errReply(err)
	}
	return rep
}
