package routingstate

import (
	"time"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/models/shrule"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"go.uber.org/atomic"
)

// Snapshot is an immutable rule set together with its version. A
// statement takes one snapshot when it starts and keeps it to the end.
type Snapshot struct {
	Rules    *shrule.RuleSet
	Version  int64
	LoadedAt time.Time
}

// Holder publishes the current rule set. Readers never block: a reload
// builds a new rule set and swaps the pointer.
type Holder struct {
	current *atomic.Pointer[Snapshot]
	version *atomic.Int64
}

func NewHolder(rs *shrule.RuleSet) *Holder {
	h := &Holder{
		current: atomic.NewPointer[Snapshot](nil),
		version: atomic.NewInt64(0),
	}
	if rs != nil {
		h.Swap(rs)
	}
	return h
}

// Snapshot returns the current rule set, nil if none was loaded.
func (h *Holder) Snapshot() *Snapshot {
	return h.current.Load()
}

// Swap publishes rs and returns the snapshot it replaced.
func (h *Holder) Swap(rs *shrule.RuleSet) *Snapshot {
	next := &Snapshot{
		Rules:    rs,
		Version:  h.version.Inc(),
		LoadedAt: time.Now(),
	}
	prev := h.current.Swap(next)

	shlog.Zero.Info().
		Int64("version", next.Version).
		Strs("data-sources", rs.DataSources()).
		Msg("rule set swapped")
	return prev
}

// ReloadFromConfig validates cfg and swaps it in. The current rule set is
// kept if cfg is invalid.
func (h *Holder) ReloadFromConfig(cfg *config.RulesCfg) (*Snapshot, error) {
	rs, err := shrule.NewRuleSet(cfg)
	if err != nil {
		shlog.Zero.Error().Err(err).Msg("rule set rejected, keeping current one")
		return nil, err
	}
	h.Swap(rs)
	return h.Snapshot(), nil
}
