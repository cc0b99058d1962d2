// Package config defines the file that configures a collaborative SLAM run: its agents,
// the collaborative relocalisation worker, logging and pose evaluation output.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/collabslam/collab"
	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/slam"
	"go.viam.com/collabslam/utils"
)

// Defaults for LoggingConfig.
const (
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
)

// DefaultEvaluationDir is where pose evaluation files are written unless configured otherwise.
const DefaultEvaluationDir = "reloc_poses"

// Config is the top level configuration.
type Config struct {
	Logging       LoggingConfig    `json:"logging"`
	Agents        []AgentConfig    `json:"agents"`
	Collaborative collab.Config    `json:"collaborative"`
	Evaluation    EvaluationConfig `json:"evaluation"`
}

// LoggingConfig configures the root logger. An empty File logs to stdout only.
type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// AgentConfig configures one SLAM agent.
type AgentConfig struct {
	ID   string      `json:"id"`
	SLAM slam.Config `json:"slam"`
}

// EvaluationConfig controls writing raw and refined relocalisation poses.
type EvaluationConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// Read reads a config from the given file. Environment variables referenced in the file are
// expanded before parsing.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	cfg, err := FromBytes(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load config file %q", filePath)
	}
	return cfg, nil
}

// FromBytes parses, defaults and validates a JSON config.
func FromBytes(buf []byte) (*Config, error) {
	var attributes map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(buf))
	decoder.UseNumber()
	if err := decoder.Decode(&attributes); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	cfg, err := FromAttributes(attributes)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromAttributes decodes an attribute map into a Config. Durations may be given as strings
// such as "250ms". Unknown keys are an error.
func FromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonNumberHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}
	return &cfg, nil
}

// jsonNumberHookFunc turns json.Number values into int64 or float64 so they decode into
// numeric fields of either kind.
func jsonNumberHookFunc() mapstructure.DecodeHookFuncType {
	return func(_, _ reflect.Type, data interface{}) (interface{}, error) {
		number, ok := data.(json.Number)
		if !ok {
			return data, nil
		}
		if i, err := number.Int64(); err == nil {
			return i, nil
		}
		return number.Float64()
	}
}

// ApplyDefaults fills in unset fields of every section.
func (cfg *Config) ApplyDefaults() {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = logging.INFO.String()
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = DefaultLogMaxBackups
	}
	for i := range cfg.Agents {
		cfg.Agents[i].SLAM.ApplyDefaults()
	}
	cfg.Collaborative.ApplyDefaults()
	if cfg.Evaluation.Dir == "" {
		cfg.Evaluation.Dir = DefaultEvaluationDir
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if _, err := cfg.Logging.LogLevel(); err != nil {
		return utils.NewConfigValidationError("logging", err)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 {
		return utils.NewConfigValidationError("logging", errors.New("max_size_mb and max_backups must be non-negative"))
	}

	if len(cfg.Agents) == 0 {
		return utils.NewConfigValidationFieldRequiredError("config", "agents")
	}
	seen := make(map[string]struct{}, len(cfg.Agents))
	for idx, agent := range cfg.Agents {
		path := fmt.Sprintf("agents.%d", idx)
		if agent.ID == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "id")
		}
		if _, ok := seen[agent.ID]; ok {
			return utils.NewConfigValidationError(path, errors.Errorf("duplicate agent id %q", agent.ID))
		}
		seen[agent.ID] = struct{}{}
		if err := agent.SLAM.Validate(path + ".slam"); err != nil {
			return err
		}
	}

	return cfg.Collaborative.Validate("collaborative")
}

// LogLevel returns the parsed logging level.
func (lc LoggingConfig) LogLevel() (logging.Level, error) {
	return logging.LevelFromString(lc.Level)
}

// AgentIDs returns the configured agent ids in file order.
func (cfg *Config) AgentIDs() []string {
	ids := make([]string, 0, len(cfg.Agents))
	for _, agent := range cfg.Agents {
		ids = append(ids, agent.ID)
	}
	return ids
}
