package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/tlsconfig"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:           "medvault",
		Short:         "Hospital records API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serveCmd(), migrateCmd(), checkRemindersCmd(), createAdminCmd(), purgeTokensCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the reminder scanner when enabled)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}

			go database.MonitorPool(ctx, a.db, a.metrics.DBConnections, 15*time.Second)
			if cfg.Reminder.ScannerEnabled {
				go a.scanner.RunEvery(ctx, cfg.Reminder.ScanInterval, cfg.Reminder.RunTimeout)
			}

			srv := &http.Server{
				Addr:         cfg.Server.Address(),
				Handler:      a.router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}
			if cfg.Server.TLSEnabled() {
				tlsCfg, err := tlsconfig.Server(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile, cfg.Server.ClientCAFile)
				if err != nil {
					return errors.Join(err, a.Close())
				}
				srv.TLSConfig = tlsCfg
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening",
					zap.String("addr", srv.Addr),
					zap.Bool("tls", srv.TLSConfig != nil),
					zap.String("env", cfg.App.Environment),
				)
				var err error
				if srv.TLSConfig != nil {
					err = srv.ListenAndServeTLS("", "")
				} else {
					err = srv.ListenAndServe()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				log.Info("shutdown signal received")
			case serveErr = <-errCh:
				log.Error("http server failed", zap.Error(serveErr))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("graceful shutdown failed", zap.Error(err))
			}
			stop()

			if err := a.Close(); err != nil {
				log.Error("closing resources", zap.Error(err))
			}
			log.Info("server stopped")
			return serveErr
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			return database.Migrate(db, log)
		},
	}
}

func checkRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-reminders",
		Short: "Send every due reminder once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Reminder.RunTimeout)
			defer cancel()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}

			res, runErr := a.scanner.Run(ctx, time.Now())
			closeErr := a.Close()
			if runErr != nil {
				return errors.Join(runErr, closeErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d sent=%d skipped=%d failed=%d contended=%t\n",
				res.Scanned, res.Sent, res.Skipped, res.Failed, res.Contended)
			return closeErr
		},
	}
}

func createAdminCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if password == "" {
				password = os.Getenv("MEDVAULT_ADMIN_PASSWORD")
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			u, createErr := a.authSvc.CreateAdmin(cmd.Context(), username, email, password)
			closeErr := a.Close()
			if createErr != nil {
				return errors.Join(createErr, closeErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Username, u.ID)
			return closeErr
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin e-mail address")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to $MEDVAULT_ADMIN_PASSWORD)")
	return cmd
}

func purgeTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-revoked-tokens",
		Short: "Delete revocation entries for tokens that have expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			n, purgeErr := a.authSvc.PurgeRevoked(cmd.Context())
			closeErr := a.Close()
			if purgeErr != nil {
				return errors.Join(purgeErr, closeErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d revoked tokens\n", n)
			return closeErr
		},
	}
}
