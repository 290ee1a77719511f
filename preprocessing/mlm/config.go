package mlm

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix for environment variables overriding the configuration, e.g. MLM_SEQUENCE_LENGTH=128.
const EnvPrefix = "MLM"

// Config holds the parameters of a MaskedLMPreprocessor.
// The values can be read by viper from a config file (yaml, json, toml) or environment variables, see LoadConfig.
type Config struct {
	// TokenizerDir is the local preset directory to load the tokenizer from (see tokenizers.FromDir).
	// It's not used by New, only by tools building the tokenizer from a configuration.
	TokenizerDir string `mapstructure:"tokenizer_dir" json:"tokenizer_dir,omitempty"`

	SequenceLength      int     `mapstructure:"sequence_length" json:"sequence_length"`
	MaskSelectionRate   float64 `mapstructure:"mask_selection_rate" json:"mask_selection_rate"`
	MaskSelectionLength int     `mapstructure:"mask_selection_length" json:"mask_selection_length"`
	MaskTokenRate       float64 `mapstructure:"mask_token_rate" json:"mask_token_rate"`
	RandomTokenRate     float64 `mapstructure:"random_token_rate" json:"random_token_rate"`
	AddStartToken       bool    `mapstructure:"add_start_token" json:"add_start_token"`
	AddEndToken         bool    `mapstructure:"add_end_token" json:"add_end_token"`

	// Parallelism is the maximum number of examples processed in parallel, <= 0 means runtime.NumCPU().
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`

	// Seed, if set, makes the preprocessing reproducible.
	Seed *uint64 `mapstructure:"seed" json:"seed,omitempty"`
}

// DefaultConfig returns the configuration used to pretrain BERT.
func DefaultConfig() Config {
	return Config{
		SequenceLength:      DefaultSequenceLength,
		MaskSelectionRate:   DefaultMaskSelectionRate,
		MaskSelectionLength: DefaultMaskSelectionLength,
		MaskTokenRate:       DefaultMaskTokenRate,
		RandomTokenRate:     DefaultRandomTokenRate,
		AddStartToken:       true,
		AddEndToken:         true,
	}
}

// Validate returns an error wrapping ErrInvalidConfig if any of the values is invalid.
func (c Config) Validate() error {
	if c.SequenceLength <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "sequence_length must be positive, got %d", c.SequenceLength)
	}
	if c.MaskSelectionLength < 0 {
		return errors.Wrapf(ErrInvalidConfig, "mask_selection_length must be >= 0, got %d", c.MaskSelectionLength)
	}
	for _, rate := range []struct {
		name  string
		value float64
	}{
		{"mask_selection_rate", c.MaskSelectionRate},
		{"mask_token_rate", c.MaskTokenRate},
		{"random_token_rate", c.RandomTokenRate},
	} {
		if math.IsNaN(rate.value) || rate.value < 0 || rate.value > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s must be in [0, 1], got %g", rate.name, rate.value)
		}
	}
	if c.MaskTokenRate+c.RandomTokenRate > 1+1e-9 {
		return errors.Wrapf(ErrInvalidConfig, "mask_token_rate (%g) + random_token_rate (%g) must be <= 1",
			c.MaskTokenRate, c.RandomTokenRate)
	}
	return nil
}

// LoadConfig reads the configuration from configPath (if not empty) and from environment variables
// prefixed with EnvPrefix. Missing values take the DefaultConfig values.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("tokenizer_dir", "")
	v.SetDefault("sequence_length", defaults.SequenceLength)
	v.SetDefault("mask_selection_rate", defaults.MaskSelectionRate)
	v.SetDefault("mask_selection_length", defaults.MaskSelectionLength)
	v.SetDefault("mask_token_rate", defaults.MaskTokenRate)
	v.SetDefault("random_token_rate", defaults.RandomTokenRate)
	v.SetDefault("add_start_token", defaults.AddStartToken)
	v.SetDefault("add_end_token", defaults.AddEndToken)
	v.SetDefault("parallelism", defaults.Parallelism)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Seed has no default, so it must be bound explicitly to be read from the environment.
	if err := v.BindEnv("seed"); err != nil {
		return nil, errors.Wrap(err, "failed to bind seed environment variable")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", configPath)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "configuration from %q", configPath)
	}
	return config, nil
}
