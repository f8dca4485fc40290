package tupleslot_test

import (
	"errors"
	"testing"

	"github.com/pg-sharding/shardsql/pkg/tupleslot"
	"github.com/stretchr/testify/assert"
)

func TestTupleTableSlotCursor(t *testing.T) {
	assert := assert.New(t)

	tts := tupleslot.New("id", "name")
	tts.WriteDataRow(int64(1), "a")
	tts.WriteDataRow(int64(2), "b")

	assert.Equal([]string{"id", "name"}, tts.Columns())
	assert.Nil(tts.Row())

	var got [][]any
	for tts.Next() {
		got = append(got, tts.Row())
	}
	assert.Equal([][]any{{int64(1), "a"}, {int64(2), "b"}}, got)
	assert.NoError(tts.Err())

	assert.NoError(tts.Close())
	assert.NoError(tts.Close())
	assert.Equal(2, tts.CloseCount())
}

func TestTupleTableSlotFailure(t *testing.T) {
	boom := errors.New("boom")
	tts := tupleslot.New("id").FailWith(boom)
	tts.WriteDataRow(1)

	assert.True(t, tts.Next())
	assert.NoError(t, tts.Err())
	assert.False(t, tts.Next())
	assert.Equal(t, boom, tts.Err())
}

func TestTupleTableSlotErrorWaitsForLastRow(t *testing.T) {
	boom := errors.New("boom")
	tts := tupleslot.New("id").FailWith(boom)
	tts.WriteDataRow(1)
	tts.WriteDataRow(2)

	assert.True(t, tts.Next())
	assert.True(t, tts.Next())
	assert.Equal(t, []any{2}, tts.Row())
	assert.NoError(t, tts.Err())

	assert.False(t, tts.Next())
	assert.Equal(t, boom, tts.Err())

	empty := tupleslot.New("id").FailWith(boom)
	assert.NoError(t, empty.Err())
	assert.False(t, empty.Next())
	assert.Equal(t, boom, empty.Err())
}

func TestTupleTableSlotStopsAfterClose(t *testing.T) {
	tts := tupleslot.New("id")
	tts.WriteDataRow(1)
	tts.WriteDataRow(2)

	assert.True(t, tts.Next())
	_ = tts.Close()
	assert.False(t, tts.Next())
}
