package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Poll     PollConfig     `mapstructure:"poll"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

type LLMConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type NotifyConfig struct {
	Gateway string       `mapstructure:"gateway"` // none | twilio | http
	Twilio  TwilioConfig `mapstructure:"twilio"`
	HTTP    GatewayHTTP  `mapstructure:"http"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

type GatewayHTTP struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type DispatchConfig struct {
	InflightWindow time.Duration `mapstructure:"inflight_window"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type PollConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
	BaseURL  string        `mapstructure:"base_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "data/olive-agents.db")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("notify.gateway", "none")
	v.SetDefault("notify.twilio.account_sid", "")
	v.SetDefault("notify.twilio.auth_token", "")
	v.SetDefault("notify.twilio.from", "")
	v.SetDefault("notify.http.url", "")
	v.SetDefault("notify.http.token", "")
	v.SetDefault("dispatch.inflight_window", 10*time.Minute)
	v.SetDefault("dispatch.timeout", 2*time.Minute)
	v.SetDefault("poll.attempts", 3)
	v.SetDefault("poll.interval", 3*time.Second)
	v.SetDefault("poll.base_url", "http://localhost:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// NewViper loads .env, then an optional YAML config file, then OLIVE_*
// environment variables. An explicit configFile that cannot be read is an
// error; a missing default file is not.
func NewViper(configFile string) (*viper.Viper, error) {
	loadDotEnv(".env")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("OLIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("olive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Notify.Gateway = strings.ToLower(strings.TrimSpace(cfg.Notify.Gateway))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "postgres", "postgresql", "supabase":
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Notify.Gateway) {
	case "", "none":
	case "twilio":
		if c.Notify.Twilio.AccountSID == "" || c.Notify.Twilio.AuthToken == "" || c.Notify.Twilio.From == "" {
			return fmt.Errorf("notify.twilio requires account_sid, auth_token and from")
		}
	case "http":
		if c.Notify.HTTP.URL == "" {
			return fmt.Errorf("notify.http.url is required for the http gateway")
		}
	default:
		return fmt.Errorf("notify.gateway must be none, twilio or http, got %q", c.Notify.Gateway)
	}
	if c.Poll.Attempts <= 0 {
		return fmt.Errorf("poll.attempts must be positive")
	}
	return nil
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
