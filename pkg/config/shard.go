package config

// ShardCfg describes how to reach one physical data source.
type ShardCfg struct {
	Driver         string `json:"driver" toml:"driver" yaml:"driver"`
	DSN            string `json:"dsn" toml:"dsn" yaml:"dsn"`
	MaxOpenConns   int    `json:"max_open_conns" toml:"max_open_conns" yaml:"max_open_conns"`
	ConnectRetries uint64 `json:"connect_retries" toml:"connect_retries" yaml:"connect_retries"`
}
