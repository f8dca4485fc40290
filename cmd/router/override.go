package main

import (
	"fmt"

	"github.com/pg-sharding/shardsql/pkg/config"
	"github.com/spf13/cobra"
)

type overrideRule struct {
	name     string
	validate func() error
	apply    func()
}

func buildOverrideRules(cfg *config.RouterCfg) []overrideRule {
	return []overrideRule{
		{
			name:  "log-level",
			apply: func() { cfg.LogLevel = logLevel },
		},
		{
			name:  "pretty-log",
			apply: func() { cfg.PrettyLogging = prettyLogging },
		},
		{
			name:  "best-effort-reads",
			apply: func() { cfg.Executor.BestEffortReads = bestEffortReads },
		},
		{
			name: "max-parallelism",
			validate: func() error {
				if maxParallelism <= 0 {
					return fmt.Errorf("max-parallelism must be positive, got %d", maxParallelism)
				}
				return nil
			},
			apply: func() { cfg.Executor.MaxParallelism = maxParallelism },
		},
	}
}

// applyOverrides copies every flag set on the command line over the
// loaded config.
func applyOverrides(cmd *cobra.Command, cfg *config.RouterCfg) error {
	for _, r := range buildOverrideRules(cfg) {
		if !cmd.Flags().Changed(r.name) {
			continue
		}
		if r.validate != nil {
			if err := r.validate(); err != nil {
				return err
			}
		}
		r.apply()
	}
	return nil
}
