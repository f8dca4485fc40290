package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

const defaultServiceName = "shardsql-router"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// zeroLogger reports tracer messages through the process logger.
type zeroLogger struct{}

func (zeroLogger) Error(msg string) {
	shlog.Zero.Error().Str("component", "jaeger").Msg(msg)
}

func (zeroLogger) Infof(msg string, args ...any) {
	shlog.Zero.Debug().Str("component", "jaeger").Msg(fmt.Sprintf(msg, args...))
}

// Configuration builds the jaeger setup for cfg.
func Configuration(cfg config.JaegerCfg) jaegercfg.Configuration {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	return jaegercfg.Configuration{
		ServiceName: name,
		Sampler: &jaegercfg.SamplerConfig{
			Type:              "const",
			Param:             1,
			SamplingServerURL: cfg.JaegerUrl,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: cfg.AgentHostPort,
		},
		Gen128Bit: true,
		Tags: []opentracing.Tag{
			{Key: "span.kind", Value: "server"},
		},
	}
}

// InitGlobalTracer installs a jaeger tracer as the opentracing global
// tracer. Without an agent address spans stay with the no-op tracer.
func InitGlobalTracer(cfg config.JaegerCfg) (io.Closer, error) {
	if cfg.AgentHostPort == "" {
		return nopCloser{}, nil
	}
	jc := Configuration(cfg)
	closer, err := jc.InitGlobalTracer(
		jc.ServiceName,
		jaegercfg.Logger(zeroLogger{}),
		jaegercfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %s", err.Error())
	}
	shlog.Zero.Info().
		Str("agent", cfg.AgentHostPort).
		Msg("jaeger tracer initialized")
	return closer, nil
}
