package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// initConfig decodes the file into target, choosing the format by the
// file suffix (.toml, .yaml/.yml or .json).
func initConfig(file *os.File, target any) error {
	name := file.Name()
	switch {
	case strings.HasSuffix(name, ".toml"):
		_, err := toml.NewDecoder(file).Decode(target)
		return err
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return yaml.NewDecoder(file).Decode(target)
	case strings.HasSuffix(name, ".json"):
		return json.NewDecoder(file).Decode(target)
	}
	return fmt.Errorf("unknown config format type: %s. Use .toml, .yaml or .json suffix in filename", name)
}

// ParseRulesCfg decodes a rules document held outside of the file system,
// e.g. in etcd. format is one of "yaml", "toml" or "json".
func ParseRulesCfg(data []byte, format string) (*RulesCfg, error) {
	cfg := &RulesCfg{}
	var err error
	switch format {
	case "toml":
		_, err = toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	case "json":
		err = json.Unmarshal(data, cfg)
	case "yaml", "yml", "":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unknown rules format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
