package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Pools     PoolsConfig     `yaml:"pools" mapstructure:"pools"`
	Countries CountriesConfig `yaml:"countries" mapstructure:"countries"`
	Sort      SortConfig      `yaml:"sort" mapstructure:"sort"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates every input and output of the pipeline.
type PathsConfig struct {
	RawDir        string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ECBDir        string `yaml:"ecb_dir" mapstructure:"ecb_dir"`
	ESMADir       string `yaml:"esma_dir" mapstructure:"esma_dir"`
	Template      string `yaml:"template" mapstructure:"template"`
	TemplateSheet string `yaml:"template_sheet" mapstructure:"template_sheet"`
	PoolMap       string `yaml:"pool_map" mapstructure:"pool_map"`
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	WorkDir       string `yaml:"work_dir" mapstructure:"work_dir"`
	Checkpoint    string `yaml:"checkpoint" mapstructure:"checkpoint"`
}

// PoolsConfig tunes the pool-level merge stage.
type PoolsConfig struct {
	BatchRows      int   `yaml:"batch_rows" mapstructure:"batch_rows"`
	LargePoolBytes int64 `yaml:"large_pool_bytes" mapstructure:"large_pool_bytes"`
	Workers        int   `yaml:"workers" mapstructure:"workers"`
}

// CountriesConfig tunes the country merge stage.
type CountriesConfig struct {
	SampleRows int `yaml:"sample_rows" mapstructure:"sample_rows"`
	BatchRows  int `yaml:"batch_rows" mapstructure:"batch_rows"`
	Workers    int `yaml:"workers" mapstructure:"workers"`
}

// SortConfig tunes the final per-country sort.
type SortConfig struct {
	Columns   []string `yaml:"columns" mapstructure:"columns"`
	BatchRows int      `yaml:"batch_rows" mapstructure:"batch_rows"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SECMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.raw_dir", "data/raw")
	v.SetDefault("paths.ecb_dir", "data/ecb")
	v.SetDefault("paths.esma_dir", "data/esma")
	v.SetDefault("paths.template", "data/template_mapping.xlsx")
	v.SetDefault("paths.template_sheet", "")
	v.SetDefault("paths.pool_map", "data/pool_map.yaml")
	v.SetDefault("paths.output_dir", "out")
	v.SetDefault("paths.work_dir", "work")
	v.SetDefault("paths.checkpoint", "secmerge.db")
	v.SetDefault("pools.batch_rows", 100000)
	v.SetDefault("pools.large_pool_bytes", 100*1024*1024)
	v.SetDefault("pools.workers", 4)
	v.SetDefault("countries.sample_rows", 100)
	v.SetDefault("countries.batch_rows", 100000)
	v.SetDefault("countries.workers", 4)
	v.SetDefault("sort.columns", []string{"RREL3", "RREC3", "RREL6"})
	v.SetDefault("sort.batch_rows", 100000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
