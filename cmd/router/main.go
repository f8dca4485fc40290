package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/pg-sharding/shardsql/pkg/datashard"
	"github.com/pg-sharding/shardsql/pkg/keygen"
	"github.com/pg-sharding/shardsql/pkg/rulesource"
	"github.com/pg-sharding/shardsql/pkg/shlog"
	"github.com/pg-sharding/shardsql/pkg/tracing"
	"github.com/pg-sharding/shardsql/router/frontend"
	"github.com/pg-sharding/shardsql/router/metrics"
	"github.com/pg-sharding/shardsql/router/qrouter"
	"github.com/pg-sharding/shardsql/router/routingstate"
	"github.com/pg-sharding/shardsql/router/stmtctx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	rcfgPath        string
	logLevel        string
	prettyLogging   bool
	bestEffortReads bool
	maxParallelism  int

	stmtPath    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "shardsql-router run --config `path-to-config`",
	Short: "shardsql-router",
	Long:  "shardsql-router routes parsed SQL statements over sharded data sources",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		shlog.Zero.Fatal().Err(err).Msg("")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rcfgPath, "config", "c", "/etc/shardsql/router.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogging, "pretty-log", false, "write logs in human readable form")
	rootCmd.PersistentFlags().BoolVar(&bestEffortReads, "best-effort-reads", false, "return rows of healthy data sources when some fail")
	rootCmd.PersistentFlags().IntVar(&maxParallelism, "max-parallelism", config.DefaultMaxParallelism, "units of one statement running at once")

	for _, c := range []*cobra.Command{explainCmd, queryCmd} {
		c.Flags().StringVarP(&stmtPath, "statement", "s", "-", "JSON statement file, - for stdin")
	}
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(runCmd, explainCmd, queryCmd)
}

// router holds everything a command needs to serve statements.
type router struct {
	cfg    *config.RouterCfg
	holder *routingstate.Holder
	pool   *datashard.Pool
	fe     *frontend.Frontend

	// set when rules come from etcd
	watcher *rulesource.EtcdWatcher
}

func newRouter(ctx context.Context, cmd *cobra.Command) (*router, error) {
	cfg, err := config.LoadRouterCfg(rcfgPath)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	shlog.ReloadLogger(cfg.LogFile, cfg.PrettyLogging)
	if err := shlog.UpdateZeroLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	shlog.ReloadSLogger(cfg.LogMinDurationStatement)
	shlog.Zero.Debug().Msg("running config: " + cfg.String())

	keys, err := keygen.NewSnowflake(cfg.KeyGenerator.NodeID)
	if err != nil {
		return nil, err
	}

	holder := routingstate.NewHolder(nil)
	var watcher *rulesource.EtcdWatcher
	if cfg.EtcdRules != nil {
		if watcher, err = rulesource.DialEtcd(cfg.EtcdRules, holder); err != nil {
			return nil, err
		}
		if _, err := watcher.Load(ctx); err != nil {
			_ = watcher.Close()
			return nil, err
		}
	} else if _, err := holder.ReloadFromConfig(&cfg.Rules); err != nil {
		return nil, err
	}

	pool, err := datashard.Open(ctx, cfg.Shards)
	if err != nil {
		if watcher != nil {
			_ = watcher.Close()
		}
		return nil, errors.Wrap(err, "router failed to start")
	}

	return &router{
		cfg:     cfg,
		holder:  holder,
		pool:    pool,
		fe:      frontend.NewFrontend(holder, qrouter.NewQrouter(), pool, keys, cfg.Executor),
		watcher: watcher,
	}, nil
}

func (r *router) Close() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
	if err := r.pool.Close(); err != nil {
		shlog.Zero.Error().Err(err).Msg("failed to close data sources")
	}
}

// reloadRules rereads the rules section of the config file.
func (r *router) reloadRules() {
	cfg, err := config.LoadRouterCfg(rcfgPath)
	if err != nil {
		shlog.Zero.Error().Err(err).Msg("failed to reread config, keeping current rules")
		return
	}
	_, _ = r.holder.ReloadFromConfig(&cfg.Rules)
}

func openStatement() (io.ReadCloser, error) {
	if stmtPath == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(stmtPath)
}

func readStatement() (*stmtctx.Statement, error) {
	f, err := openStatement()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return stmtctx.DecodeStatement(f)
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "show how a statement is routed and rewritten",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRouter(ctx, cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		stmt, err := readStatement()
		if err != nil {
			return err
		}
		tts, err := r.fe.Explain(ctx, stmt)
		if err != nil {
			return err
		}
		return writeRows(cmd.OutOrStdout(), tts)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "execute one statement",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRouter(ctx, cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		stmt, err := readStatement()
		if err != nil {
			return err
		}
		res, err := r.fe.Query(ctx, stmt)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "serve JSON statements read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()

		r, err := newRouter(ctx, cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		closer, err := tracing.InitGlobalTracer(r.cfg.JaegerConfig)
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case s := <-sigs:
					shlog.Zero.Info().Str("signal", s.String()).Msg("received signal")

					switch s {
					case syscall.SIGHUP:
						if r.watcher == nil {
							r.reloadRules()
						}
					case syscall.SIGINT, syscall.SIGTERM:
						cancelCtx()
						return
					}
				}
			}
		}()

		wg := &sync.WaitGroup{}

		if r.watcher != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					shlog.Zero.Error().Err(err).Msg("rules watcher stopped")
				}
			}()
		}

		if metricsAddr != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := metrics.Serve(ctx, metricsAddr, r.holder); err != nil {
					shlog.Zero.Error().Err(err).Msg("metrics server failed")
				}
			}()
		}

		err = serve(ctx, r.fe, os.Stdin, cmd.OutOrStdout())
		cancelCtx()
		wg.Wait()
		return err
	},
}

func main() {
	Execute()
}
