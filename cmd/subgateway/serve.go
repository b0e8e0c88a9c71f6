package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mankindli/sub-gateway/internal/accesslog"
	"github.com/mankindli/sub-gateway/internal/auth"
	"github.com/mankindli/sub-gateway/internal/config"
	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/database"
	"github.com/mankindli/sub-gateway/internal/logging"
	"github.com/mankindli/sub-gateway/internal/server"
	"github.com/mankindli/sub-gateway/internal/store"
	"github.com/mankindli/sub-gateway/internal/subscription"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the subscription gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	st, err := store.New(appConfig.StorePath, logger)
	if err != nil {
		return err
	}

	// Refuse to start over an unparseable document: serving with no safe
	// fallback state would silently deny every customer.
	if _, err := st.Load(); err != nil {
		return err
	}

	lifecycle, err := customers.NewService(customers.ServiceConfig{
		Store:  st,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	gateway, err := subscription.NewGateway(st)
	if err != nil {
		return err
	}

	secret, err := signingSecret(appConfig)
	if err != nil {
		return err
	}
	sessions := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: secret,
		SessionTTL:    time.Duration(appConfig.SessionTTLMinutes) * time.Minute,
	})

	var recorder *accesslog.Recorder
	if appConfig.AccessLogPath != "" {
		db, err := database.OpenSQLite(appConfig.AccessLogPath, logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		recorder, err = accesslog.NewRecorder(accesslog.RecorderConfig{
			Database: db,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Customers:     lifecycle,
		Subscriptions: gateway,
		Sessions:      sessions,
		Credentials: auth.Credentials{
			Username: appConfig.AdminUsername,
			Password: appConfig.AdminPassword,
		},
		AccessLog: recorder,
		BaseURL:   appConfig.BaseURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store", appConfig.StorePath))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
