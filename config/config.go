/*
Package config loads server settings.

SOURCES (later wins):
  1. defaults below
  2. optional YAML file (-config flag)
  3. .env in the working directory, when present
  4. FACINV_* environment variables, dots become underscores
     (FACINV_HTTP_ADDR overrides http.addr)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // business time zone without a system zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr         string
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"http"`

	Database struct {
		Path string
	} `mapstructure:"database"`

	Log struct {
		Level  string
		Format string
	} `mapstructure:"log"`

	Tenant struct {
		BaseDomain string `mapstructure:"base_domain"`
		Header     string
	} `mapstructure:"tenant"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Redis struct {
		Addr     string
		Password string
		DB       int
		LockTTL  time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "America/Bogota")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("database.path", "facinv.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tenant.base_domain", "")
	v.SetDefault("tenant.header", "X-Tenant")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
}

// Load reads configuration. path may be empty.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FACINV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Location is the business time zone every closing date is computed in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}
