package tupleslot

import "sync/atomic"

// TupleTableSlot is an in-memory row set. It also serves as a row cursor
// for results produced by the router itself, e.g. explain output.
type TupleTableSlot struct {
	Desc []string

	Raw [][]any

	pos       int
	exhausted bool
	err       error
	closes    atomic.Int32
}

func New(desc ...string) *TupleTableSlot {
	return &TupleTableSlot{Desc: desc}
}

func (tts *TupleTableSlot) WriteDataRow(vals ...any) {
	tts.Raw = append(tts.Raw, vals)
}

// FailWith makes the cursor stop after the rows written so far and
// report err once Next has returned false.
func (tts *TupleTableSlot) FailWith(err error) *TupleTableSlot {
	tts.err = err
	return tts
}

func (tts *TupleTableSlot) Columns() []string {
	return tts.Desc
}

func (tts *TupleTableSlot) Next() bool {
	if tts.closes.Load() > 0 || tts.pos >= len(tts.Raw) {
		tts.exhausted = true
		return false
	}
	tts.pos++
	return true
}

func (tts *TupleTableSlot) Row() []any {
	if tts.pos == 0 || tts.pos > len(tts.Raw) {
		return nil
	}
	return tts.Raw[tts.pos-1]
}

func (tts *TupleTableSlot) Err() error {
	if tts.exhausted {
		return tts.err
	}
	return nil
}

func (tts *TupleTableSlot) Close() error {
	tts.closes.Add(1)
	return nil
}

// CloseCount tells how many times Close was called.
func (tts *TupleTableSlot) CloseCount() int {
	return int(tts.closes.Load())
}
