package config

import (
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix for environment overrides, e.g. REPORTHUB_SERVER_PORT.
const EnvPrefix = "REPORTHUB"

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Deck   DeckConfig   `yaml:"deck" mapstructure:"deck"`
	Admin  AdminConfig  `yaml:"admin" mapstructure:"admin"`
	Seed   SeedConfig   `yaml:"seed" mapstructure:"seed"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. DatabaseURL is a file path
// for sqlite and a connection string for postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host        string   `yaml:"host" mapstructure:"host"`
	Port        int      `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DeckConfig configures slide deck generation.
type DeckConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// AdminConfig configures operator endpoints.
type AdminConfig struct {
	ResetInterval time.Duration `yaml:"reset_interval" mapstructure:"reset_interval"`
}

// SeedConfig controls the data loaded after migrations.
type SeedConfig struct {
	Demo bool `yaml:"demo" mapstructure:"demo"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from an optional .env file, an optional
// config.yaml, and the environment.
func Load() (*Config, error) {
	// .env values never override variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gpse.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.base_url", "http://127.0.0.1:5000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("deck.enabled", true)
	v.SetDefault("deck.output_dir", "output_ppt")
	v.SetDefault("admin.reset_interval", 10*time.Second)
	v.SetDefault("seed.demo", true)
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and reports every failing field by its
// config key, e.g. "server.port failed lte".
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "config: validate")
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs[i] = key + " failed " + fe.Tag()
	}
	return eris.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
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
