package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

type RouterCfg struct {
	LogLevel                string        `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile                 string        `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLogging           bool          `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`
	LogMinDurationStatement time.Duration `json:"log_min_duration_statement" toml:"log_min_duration_statement" yaml:"log_min_duration_statement"`

	Executor     ExecutorCfg          `json:"executor" toml:"executor" yaml:"executor"`
	KeyGenerator KeyGeneratorCfg      `json:"key_generator" toml:"key_generator" yaml:"key_generator"`
	Shards       map[string]*ShardCfg `json:"shards" toml:"shards" yaml:"shards"`
	Rules        RulesCfg             `json:"rules" toml:"rules" yaml:"rules"`
	EtcdRules    *EtcdRulesCfg        `json:"etcd_rules" toml:"etcd_rules" yaml:"etcd_rules"`
	JaegerConfig JaegerCfg            `json:"jaeger" toml:"jaeger" yaml:"jaeger"`
}

// JaegerCfg enables span reporting when AgentHostPort is set.
type JaegerCfg struct {
	ServiceName   string `json:"service_name" toml:"service_name" yaml:"service_name"`
	AgentHostPort string `json:"agent_host_port" toml:"agent_host_port" yaml:"agent_host_port"`
	JaegerUrl     string `json:"jaeger_url" toml:"jaeger_url" yaml:"jaeger_url"`
}

type KeyGeneratorCfg struct {
	NodeID int64 `json:"node_id" toml:"node_id" yaml:"node_id"`
}

// EtcdRulesCfg points the router at a key holding the rules document.
// Updates of that key are applied without restart.
type EtcdRulesCfg struct {
	Endpoints   []string      `json:"endpoints" toml:"endpoints" yaml:"endpoints"`
	Key         string        `json:"key" toml:"key" yaml:"key"`
	Format      string        `json:"format" toml:"format" yaml:"format"`
	DialTimeout time.Duration `json:"dial_timeout" toml:"dial_timeout" yaml:"dial_timeout"`
}

// LoadRouterCfg loads the router configuration from the specified file path.
// The format is picked by the file suffix.
func LoadRouterCfg(cfgPath string) (*RouterCfg, error) {
	file, err := os.Open(cfgPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	cfg := &RouterCfg{}
	if err := initConfig(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", cfgPath)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *RouterCfg) setDefaults() {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogMinDurationStatement == 0 {
		cfg.LogMinDurationStatement = -1
	}
	cfg.Executor.setDefaults()
}

func (cfg *RouterCfg) Validate() error {
	if err := cfg.Executor.Validate(); err != nil {
		return err
	}
	for name, sh := range cfg.Shards {
		if sh == nil || sh.Driver == "" || sh.DSN == "" {
			return errors.Errorf("shard %q: driver and dsn are required", name)
		}
	}
	return cfg.Rules.Validate()
}

// String renders the config as indented JSON, for startup logging.
func (cfg *RouterCfg) String() string {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
