package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgrewell/udf-kit/pkg/consts"
	"github.com/bgrewell/udf-kit/pkg/logging"
	"github.com/bgrewell/udf-kit/pkg/option"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	// AppName names the config file and its directory under ~/.config.
	AppName = "udfkit"

	// EnvPrefix is the prefix for environment variables, e.g. UDFKIT_RECURSION.
	EnvPrefix = "UDFKIT"

	// RecursionMax selects unbounded nested extraction.
	RecursionMax = "max"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the settings shared by the command line tools.
type Config struct {
	// Recursion is a non-negative depth or "max".
	Recursion string `mapstructure:"recursion"`
	Strict    bool   `mapstructure:"strict"`
	// ChunkSize overrides the probed copy buffer size when positive.
	ChunkSize int  `mapstructure:"chunk_size"`
	Spinner   bool `mapstructure:"spinner"`

	Log struct {
		Verbosity int  `mapstructure:"verbosity"`
		Color     bool `mapstructure:"color"`
		// Format is "text" or "json".
		Format string `mapstructure:"format"`
		// File receives JSON records in addition to stderr.
		File string `mapstructure:"file"`
	} `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load reads the configuration. An explicit cfgFile must exist; otherwise udfkit.yaml is looked
// up in the working directory and ~/.config/udfkit and a missing file leaves the defaults in place.
// Environment variables override both.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if _, err := cfg.RecursionDepth(); err != nil {
		return nil, err
	}
	switch cfg.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return nil, fmt.Errorf("log format must be %q or %q, got %q", LogFormatText, LogFormatJSON, cfg.Log.Format)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recursion", RecursionMax)
	v.SetDefault("strict", false)
	v.SetDefault("chunk_size", 0)
	v.SetDefault("spinner", true)
	v.SetDefault("log.verbosity", 0)
	v.SetDefault("log.color", true)
	v.SetDefault("log.format", LogFormatText)
	v.SetDefault("log.file", "")
}

// RecursionDepth converts Recursion to a depth usable with option.WithRecursionDepth.
func (c *Config) RecursionDepth() (int, error) {
	if strings.EqualFold(strings.TrimSpace(c.Recursion), RecursionMax) {
		return consts.MAX_RECURSION, nil
	}
	depth, err := cast.ToIntE(strings.TrimSpace(c.Recursion))
	if err != nil || depth < 0 {
		return 0, fmt.Errorf("recursion must be max or a number of recursive extractions, got %q", c.Recursion)
	}
	return depth, nil
}

// Logger builds the logger selected by the log settings, raised to at least minVerbosity.
func (c *Config) Logger(minVerbosity int) (*logging.Logger, error) {
	verbosity := max(c.Log.Verbosity, minVerbosity)
	if c.Log.Format != LogFormatJSON {
		return logging.NewLogger(logging.NewSimpleLogger(os.Stderr, verbosity, c.Log.Color)), nil
	}
	outputs := []string{"stderr"}
	if c.Log.File != "" {
		outputs = append(outputs, c.Log.File)
	}
	log, err := logging.NewJSONLogger(verbosity, outputs...)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(log), nil
}

// OpenOptions returns the extraction options this configuration selects.
func (c *Config) OpenOptions() ([]option.OpenOption, error) {
	depth, err := c.RecursionDepth()
	if err != nil {
		return nil, err
	}
	return []option.OpenOption{
		option.WithRecursionDepth(depth),
		option.WithStrict(c.Strict),
		option.WithChunkSize(c.ChunkSize),
	}, nil
}
