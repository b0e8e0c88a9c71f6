package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SUBGATEWAY"

	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultBaseURL       = "http://localhost:8080"
	defaultStorePath     = "config/customers.yml"
	defaultAccessLogPath = "subgateway-access.db"
	defaultLogLevel      = "info"
	defaultAdminUsername = "admin"
	defaultSessionTTLMin = 30
)

// AppConfig captures runtime configuration for the gateway.
type AppConfig struct {
	HTTPAddress       string
	BaseURL           string
	StorePath         string
	AccessLogPath     string
	LogLevel          string
	AdminUsername     string
	AdminPassword     string
	SigningSecret     string
	SessionTTLMinutes int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("base_url", defaultBaseURL)
	configViper.SetDefault("store.path", defaultStorePath)
	configViper.SetDefault("accesslog.path", defaultAccessLogPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("admin.username", defaultAdminUsername)
	configViper.SetDefault("admin.session_ttl_minutes", defaultSessionTTLMin)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		BaseURL:           strings.TrimRight(configViper.GetString("base_url"), "/"),
		StorePath:         configViper.GetString("store.path"),
		AccessLogPath:     configViper.GetString("accesslog.path"),
		LogLevel:          configViper.GetString("log.level"),
		AdminUsername:     configViper.GetString("admin.username"),
		AdminPassword:     configViper.GetString("admin.password"),
		SigningSecret:     configViper.GetString("auth.signing_secret"),
		SessionTTLMinutes: configViper.GetInt("admin.session_ttl_minutes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminUsername) == "" {
		return fmt.Errorf("admin.username is required")
	}
	if strings.TrimSpace(c.AdminPassword) == "" {
		return fmt.Errorf("admin.password is required")
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("admin.session_ttl_minutes must be positive")
	}
	return nil
}
