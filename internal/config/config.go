// Package config loads portal settings from amsportal.yaml, a .env file and
// AMS_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configName = "amsportal"
	configType = "yaml"
	envPrefix  = "AMS"

	// FileName is the default config file written by `amsportal config init`.
	FileName = configName + "." + configType
)

// Config holds every tunable of the portal.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	DBPath             string        `mapstructure:"db_path" yaml:"db_path"`
	SessionTimeout     time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	CookieSecure       bool          `mapstructure:"cookie_secure" yaml:"cookie_secure"`
	AdminUsername      string        `mapstructure:"admin_username" yaml:"admin_username"`
	AdminPassword      string        `mapstructure:"admin_password" yaml:"admin_password"`
	Timezone           string        `mapstructure:"timezone" yaml:"timezone"`
	CurrencySymbol     string        `mapstructure:"currency_symbol" yaml:"currency_symbol"`
	AppTypes           []string      `mapstructure:"app_types" yaml:"app_types"`
	LoginRatePerMinute int           `mapstructure:"login_rate_per_minute" yaml:"login_rate_per_minute"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:               ":8080",
		DBPath:             "amsportal.db",
		SessionTimeout:     900 * time.Second,
		CookieSecure:       false,
		AdminUsername:      "admin",
		AdminPassword:      "password",
		Timezone:           "Asia/Kolkata",
		CurrencySymbol:     "₹",
		AppTypes:           []string{"Service A", "Service B", "Both"},
		LoginRatePerMinute: 5,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load builds a Config. path may name a config file; when empty the working
// directory is searched for amsportal.yaml and a missing file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	d := Defaults()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("session_timeout", d.SessionTimeout)
	v.SetDefault("cookie_secure", d.CookieSecure)
	v.SetDefault("admin_username", d.AdminUsername)
	v.SetDefault("admin_password", d.AdminPassword)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("currency_symbol", d.CurrencySymbol)
	v.SetDefault("app_types", d.AppTypes)
	v.SetDefault("login_rate_per_minute", d.LoginRatePerMinute)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the portal cannot run with.
func (c Config) Validate() error {
	if c.SessionTimeout <= 0 {
		return errors.New("session_timeout must be positive")
	}
	if len(c.AppTypes) == 0 {
		return errors.New("app_types must list at least one service category")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return errors.New("admin_username and admin_password are required")
	}
	if c.LoginRatePerMinute <= 0 {
		return errors.New("login_rate_per_minute must be positive")
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WriteDefault writes the built-in configuration as YAML to path. An
// existing file is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat config file: %w", err)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure config dir: %w", err)
		}
	}
	var doc yaml.Node
	if err := doc.Encode(Defaults()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	// time.Duration encodes as nanoseconds; write the readable form instead.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "session_timeout" {
			doc.Content[i+1].Tag = "!!str"
			doc.Content[i+1].Value = Defaults().SessionTimeout.String()
		}
	}
	doc.HeadComment = "AMS Portal configuration. Every key can be overridden with AMS_<KEY>."
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
