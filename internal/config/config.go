// Package config provides the configuration of allplay, read from defaults,
// an optional allplay.yaml file, ALLPLAY_* environment variables and command
// line flags, in increasing order of precedence.
package config

import (
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding configuration
// keys; e.g. ALLPLAY_DECOMPOSE_FACTOR for decompose.factor.
const EnvPrefix = "ALLPLAY"

// Config is the configuration of allplay.
type Config struct {
	Decompose DecomposeConfig `mapstructure:"decompose"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Source    SourceConfig    `mapstructure:"source"`
	// Suppress non-error messages.
	Quiet bool `mapstructure:"quiet"`
}

// DecomposeConfig configures the decomposition of a module.
type DecomposeConfig struct {
	// Partition factor.
	Factor int `mapstructure:"factor"`
	// Derive the partition factor from the definition count of each module.
	Adaptive bool `mapstructure:"adaptive"`
	// Reparse each partition before writing it.
	Verify bool `mapstructure:"verify"`
	// Print each partition before writing it.
	Dump bool `mapstructure:"dump"`
	// Remove information identifying the original module.
	StripSourceInfo bool `mapstructure:"strip_source_info"`
}

// BatchConfig configures the decomposition of all modules of a catalog.
type BatchConfig struct {
	// Number of concurrent decompositions; 0 to auto-detect.
	Jobs int `mapstructure:"jobs"`
	// Output directory of the partition archives.
	OutDir string `mapstructure:"out_dir"`
	// Decompose the main module of each bundle rather than each unique module.
	ExtractFromBundles bool `mapstructure:"extract_from_bundles"`
}

// SourceConfig configures the printing of LLVM IR assembly.
type SourceConfig struct {
	// Syntax highlighting style.
	Style string `mapstructure:"style"`
	// Tab width of HTML output.
	TabWidth int `mapstructure:"tab_width"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Decompose: DecomposeConfig{
			Factor: 11,
		},
		Batch: BatchConfig{
			Jobs:   0,
			OutDir: "bits",
		},
		Source: SourceConfig{
			Style:    "monokai",
			TabWidth: 4,
		},
	}
}

// SetDefaults registers the default configuration with v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Decompose defaults
	v.SetDefault("decompose.factor", defaults.Decompose.Factor)
	v.SetDefault("decompose.adaptive", defaults.Decompose.Adaptive)
	v.SetDefault("decompose.verify", defaults.Decompose.Verify)
	v.SetDefault("decompose.dump", defaults.Decompose.Dump)
	v.SetDefault("decompose.strip_source_info", defaults.Decompose.StripSourceInfo)

	// Batch defaults
	v.SetDefault("batch.jobs", defaults.Batch.Jobs)
	v.SetDefault("batch.out_dir", defaults.Batch.OutDir)
	v.SetDefault("batch.extract_from_bundles", defaults.Batch.ExtractFromBundles)

	// Source defaults
	v.SetDefault("source.style", defaults.Source.Style)
	v.SetDefault("source.tab_width", defaults.Source.TabWidth)

	v.SetDefault("quiet", defaults.Quiet)
}

// New returns a configuration registry with defaults and environment
// variables set up. The given configuration file is read if non-empty;
// otherwise allplay.yaml is read from the working directory if present.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if len(cfgFile) > 0 {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %q", cfgFile)
		}
		return v, nil
	}
	v.SetConfigName("allplay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(err, "unable to read config file")
		}
	}
	return v, nil
}

// Load returns the configuration of v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (cfg *Config) Validate() error {
	if !cfg.Decompose.Adaptive && cfg.Decompose.Factor < 2 {
		return errors.Errorf("invalid partition factor %d; must be at least 2", cfg.Decompose.Factor)
	}
	if cfg.Batch.Jobs < 0 {
		return errors.Errorf("invalid number of jobs %d", cfg.Batch.Jobs)
	}
	if len(cfg.Batch.OutDir) == 0 {
		return errors.New("empty batch output directory")
	}
	if cfg.Source.TabWidth < 1 {
		return errors.Errorf("invalid tab width %d", cfg.Source.TabWidth)
	}
	return nil
}
