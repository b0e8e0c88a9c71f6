package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/mankindli/sub-gateway/internal/config"
	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/logging"
	"github.com/mankindli/sub-gateway/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "subgateway",
		Short: "Subscription gateway distributing per-customer proxy nodes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCustomerCommand())
	rootCmd.AddCommand(newOverrideCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("base-url", defaults.GetString("base_url"), "Public base URL used in subscribe links")
	cmd.PersistentFlags().String("store-path", defaults.GetString("store.path"), "Customer document path")
	cmd.PersistentFlags().String("accesslog-path", defaults.GetString("accesslog.path"), "Access log database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("admin-username", defaults.GetString("admin.username"), "Admin username")
	cmd.PersistentFlags().String("admin-password", "", "Admin password (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "base_url", "base-url")
	bindFlag(cmd, "store.path", "store-path")
	bindFlag(cmd, "accesslog.path", "accesslog-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "admin.username", "admin-username")
	bindFlag(cmd, "admin.password", "admin-password")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

// signingSecret returns the configured secret, or a random per-process one.
// Sessions issued against a generated secret do not survive restarts, which
// is fine: Basic credentials always work.
func signingSecret(cfg config.AppConfig) ([]byte, error) {
	if cfg.SigningSecret != "" {
		return []byte(cfg.SigningSecret), nil
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	return []byte(hex.EncodeToString(raw)), nil
}

// buildService assembles the store and lifecycle service the management
// subcommands operate on directly, without going through the HTTP layer.
func buildService() (*customers.Service, *zap.Logger, config.AppConfig, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, config.AppConfig{}, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, config.AppConfig{}, err
	}

	st, err := store.New(appConfig.StorePath, logger)
	if err != nil {
		return nil, nil, config.AppConfig{}, err
	}

	service, err := customers.NewService(customers.ServiceConfig{
		Store:  st,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, config.AppConfig{}, err
	}

	return service, logger, appConfig, nil
}
