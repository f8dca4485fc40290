package keygen

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/pg-sharding/shardsql/pkg/models/sherror"
	"github.com/pg-sharding/shardsql/router/executor"
)

// Snowflake generates unique 64-bit keys for any table. Keys of one
// router are increasing; nodeID must differ between routers.
type Snowflake struct {
	node *snowflake.Node
}

var _ executor.KeyGenerator = &Snowflake{}

func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, sherror.Wrap(sherror.SH_CONFIGURATION, err)
	}
	return &Snowflake{node: node}, nil
}

func (s *Snowflake) NextKey(context.Context, string, string) (any, error) {
	return s.node.Generate().Int64(), nil
}

// Sequence hands out 1, 2, 3... per table column. Counters live in
// memory only.
type Sequence struct {
	mu   sync.Mutex
	vals map[string]int64
}

var _ executor.KeyGenerator = &Sequence{}

func NewSequence() *Sequence {
	return &Sequence{vals: map[string]int64{}}
}

func (s *Sequence) NextKey(_ context.Context, table, column string) (any, error) {
	key := strings.ToLower(table + "." + column)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key]++
	return s.vals[key], nil
}

// Read returns the last value handed out for a column, 0 if none.
func (s *Sequence) Read(table, column string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[strings.ToLower(table+"."+column)]
}
