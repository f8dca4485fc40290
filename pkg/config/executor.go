package config

import "github.com/pkg/errors"

type ParamStyle string

const (
	ParamStyleQuestion = ParamStyle("question")
	ParamStyleDollar   = ParamStyle("dollar")
)

const DefaultMaxParallelism = 16

type ExecutorCfg struct {
	// Upper bound of physical units running concurrently for one statement.
	MaxParallelism int `json:"max_parallelism" toml:"max_parallelism" yaml:"max_parallelism"`
	// When set, a SELECT returns rows of the healthy targets if some targets fail.
	BestEffortReads bool       `json:"best_effort_reads" toml:"best_effort_reads" yaml:"best_effort_reads"`
	ParamStyle      ParamStyle `json:"param_style" toml:"param_style" yaml:"param_style"`
}

func (cfg *ExecutorCfg) setDefaults() {
	if cfg.MaxParallelism == 0 {
		cfg.MaxParallelism = DefaultMaxParallelism
	}
	if cfg.ParamStyle == "" {
		cfg.ParamStyle = ParamStyleQuestion
	}
}

func (cfg *ExecutorCfg) Validate() error {
	if cfg.MaxParallelism < 0 {
		return errors.Errorf("max_parallelism must not be negative, got %d", cfg.MaxParallelism)
	}
	switch cfg.ParamStyle {
	case ParamStyleQuestion, ParamStyleDollar, "":
		return nil
	default:
		return errors.Errorf("unknown param_style %q", cfg.ParamStyle)
	}
}
