package statistics

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

type StatisticsType string

const (
	Router = StatisticsType("router")
	Shard  = StatisticsType("shard")
)

// statistics keeps latency digests in milliseconds, keyed by route type
// for Router and by data source for Shard.
type statistics struct {
	mu sync.Mutex

	RouterTime map[string]*tdigest.TDigest
	ShardTime  map[string]*tdigest.TDigest
	Quantiles  []float64
}

var queryStatistics = statistics{
	RouterTime: make(map[string]*tdigest.TDigest),
	ShardTime:  make(map[string]*tdigest.TDigest),
}

func SetQuantiles(q []float64) {
	queryStatistics.mu.Lock()
	defer queryStatistics.mu.Unlock()
	queryStatistics.Quantiles = q
}

func GetQuantiles() []float64 {
	queryStatistics.mu.Lock()
	defer queryStatistics.mu.Unlock()
	return append([]float64(nil), queryStatistics.Quantiles...)
}

func (s *statistics) add(tip StatisticsType, key string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.RouterTime
	if tip == Shard {
		m = s.ShardTime
	}
	td, ok := m[key]
	if !ok {
		var err error
		if td, err = tdigest.New(); err != nil {
			return
		}
		m[key] = td
	}
	_ = td.Add(float64(d.Microseconds()) / 1000)
}

// GetTimeQuantile returns the q-quantile of recorded durations in
// milliseconds, or 0 when nothing was recorded for key.
func GetTimeQuantile(tip StatisticsType, key string, q float64) float64 {
	queryStatistics.mu.Lock()
	defer queryStatistics.mu.Unlock()

	var td *tdigest.TDigest
	switch tip {
	case Router:
		td = queryStatistics.RouterTime[key]
	case Shard:
		td = queryStatistics.ShardTime[key]
	}
	if td == nil || td.Count() == 0 {
		return 0
	}
	return td.Quantile(q)
}

// Reset drops every digest.
func Reset() {
	queryStatistics.mu.Lock()
	defer queryStatistics.mu.Unlock()
	queryStatistics.RouterTime = make(map[string]*tdigest.TDigest)
	queryStatistics.ShardTime = make(map[string]*tdigest.TDigest)
}
