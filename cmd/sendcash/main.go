package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sendcash-backend/internal/app"
	"sendcash-backend/internal/config"
	"sendcash-backend/internal/db"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "sendcash",
		Short:        "SendCash backend: username cache, payment store and reminder scheduler",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path (default config.local.yaml or config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Telegram bot, scheduler and payment watcher",
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("no-scheduler", false, "do not start the reminder scheduler on this instance")
	root.AddCommand(serveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	})

	root.AddCommand(&cobra.Command{
		Use:   "remind",
		Short: "Run a single scheduler tick and exit",
		RunE:  runRemind,
	})

	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin credential helpers",
	}
	adminCmd.AddCommand(
		&cobra.Command{
			Use:   "hash-password <password>",
			Short: "Print a bcrypt hash for admin.passwordHash",
			Args:  cobra.ExactArgs(1),
			RunE:  runHashPassword,
		},
		&cobra.Command{
			Use:   "totp-code",
			Short: "Print the current TOTP code for admin.totpSecret",
			RunE:  runTOTPCode,
		},
		&cobra.Command{
			Use:   "token",
			Short: "Sign an admin JWT with admin.jwtSecret",
			RunE:  runAdminToken,
		},
	)
	root.AddCommand(adminCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if noScheduler, _ := cmd.Flags().GetBool("no-scheduler"); noScheduler {
		cfg.Scheduler.Enabled = false
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewServiceContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := db.Migrate(container.DB, logger); err != nil {
		container.Close()
		return err
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		container.Shutdown(shutdownCtx)
	}

	if err := container.Start(ctx); err != nil {
		shutdown()
		return err
	}

	<-ctx.Done()
	shutdown()
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	database, err := db.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	return db.Migrate(database, logger)
}

func runRemind(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewServiceContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	result, err := container.SchedulerService.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d sent=%d failed=%d skipped=%d duration=%s\n",
		result.Scanned, result.Sent, result.Failed, result.Skipped, result.Duration)
	return nil
}
