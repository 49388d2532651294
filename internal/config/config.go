// Package config loads blockcheck's typed configuration from defaults, an
// optional config file, BLOCKCHECK_* environment variables and runtime
// overrides, in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/blockcheck/pkg/setup"
)

// AppName names the binary, its config file and its data directory.
const AppName = "blockcheck"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLOCKCHECK"

// Config is the resolved configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Setup   SetupConfig   `mapstructure:"setup"`
	Check   CheckConfig   `mapstructure:"check"`
	Wait    WaitConfig    `mapstructure:"wait"`
	Crops   CropsConfig   `mapstructure:"crops"`
	Server  ServerConfig  `mapstructure:"server"`
	S3      S3Config      `mapstructure:"s3"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// SetupConfig locates setup configuration documents.
type SetupConfig struct {
	TrainingVersion string `mapstructure:"training_version"`

	// SearchRoots are path templates with {training_version} and {setup}
	// placeholders, searched in order.
	SearchRoots []string `mapstructure:"search_roots"`
	ConfigNames []string `mapstructure:"config_names"`
}

type CheckConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	MaxMissing  int     `mapstructure:"max_missing"`
}

type WaitConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CropsConfig struct {
	DBPath    string `mapstructure:"db_path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("setup.training_version", setup.DefaultTrainingVersion)
	v.SetDefault("setup.search_roots", setup.DefaultSearchRoots)
	v.SetDefault("setup.config_names", setup.DefaultConfigNames)

	v.SetDefault("check.concurrency", 1)
	v.SetDefault("check.rate_limit", 0)
	v.SetDefault("check.max_missing", 20)

	v.SetDefault("wait.interval", "30s")
	v.SetDefault("wait.timeout", "0s")

	v.SetDefault("crops.db_path", DefaultCropsDBPath())
	v.SetDefault("crops.url", "")
	v.SetDefault("crops.auth_token", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.force_path_style", false)
}

// DefaultCropsDBPath is the crop catalog location under the app data dir.
func DefaultCropsDBPath() string {
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "crops.db")
}

// Load resolves configuration without an explicit config file. A
// blockcheck.yaml in the working directory or the user config dir is used
// when present.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile resolves configuration using path as the config file. An empty
// path searches the default locations.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := Prepare(v, path); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	return FromViper(v)
}

// Prepare registers defaults and environment binding on v, then reads the
// config file at path, or the first blockcheck.yaml found when path is empty.
func Prepare(v *viper.Viper, path string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return readConfigFile(v, path)
}

// FromViper decodes and validates the settings held by v and records them
// as the current configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Check.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("check.concurrency must be >= 1, got %d", c.Check.Concurrency))
	}
	if c.Check.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("check.rate_limit must be >= 0, got %g", c.Check.RateLimit))
	}
	if c.Wait.Interval <= 0 {
		errs = append(errs, fmt.Errorf("wait.interval must be positive, got %s", c.Wait.Interval))
	}
	if c.Wait.Timeout < 0 {
		errs = append(errs, fmt.Errorf("wait.timeout must be >= 0, got %s", c.Wait.Timeout))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if len(c.Setup.SearchRoots) == 0 {
		errs = append(errs, errors.New("setup.search_roots must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, AppName))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
