package statistics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{
	0.0001, // 100µs
	0.0005, // 500µs
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.5,    // 500ms
	1.0,    // 1s
	5.0,    // 5s
	10.0,   // 10s
}

var (
	// end-to-end statement duration: route, rewrite, execute and merge
	statementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shardsql_statement_duration_seconds",
		Help:    "Statement duration in seconds (end-to-end)",
		Buckets: durationBuckets,
	})

	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shardsql_unit_duration_seconds",
		Help:    "Duration of one physical unit on its data source in seconds",
		Buckets: durationBuckets,
	}, []string{"data_source"})

	unitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardsql_units_total",
		Help: "Total number of physical units dispatched",
	}, []string{"data_source", "outcome"})

	statementTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardsql_statements_total",
		Help: "Total number of statements processed",
	}, []string{"route_type"})
)

// RecordUnit records one dispatched unit.
func RecordUnit(dataSource string, d time.Duration, err error) {
	unitDuration.WithLabelValues(dataSource).Observe(d.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	unitTotal.WithLabelValues(dataSource, outcome).Inc()

	queryStatistics.add(Shard, dataSource, d)
}

// RecordStatement records a finished statement.
func RecordStatement(routeType string, d time.Duration) {
	statementDuration.Observe(d.Seconds())
	statementTotal.WithLabelValues(routeType).Inc()

	queryStatistics.add(Router, routeType, d)
}
