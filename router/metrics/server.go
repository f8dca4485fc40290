package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/router/routingstate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHandler serves Prometheus metrics and a health check. The health
// check fails until a rule set is loaded.
func NewHandler(holder *routingstate.Holder) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if holder.Snapshot() == nil {
			http.Error(w, "no sharding rules loaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, holder *routingstate.Holder) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(holder),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	shlog.Zero.Info().
		Str("addr", addr).
		Msg("starting metrics server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
