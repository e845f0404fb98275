package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tournevent/postershop/internal/server"
	"github.com/tournevent/postershop/internal/store"
	"github.com/tournevent/postershop/pkg/carrier"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "postershop",
	Short:   "Poster storefront fulfillment service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GraphQL server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrate,
}

var diagnoseWarehouseCmd = &cobra.Command{
	Use:   "diagnose-warehouse NAME",
	Short: "Explain why the carrier may reject a warehouse name",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnoseWarehouse,
}

func init() {
	diagnoseWarehouseCmd.Flags().String("error", "", "error message returned by the carrier")

	rootCmd.AddCommand(serveCmd, migrateCmd, diagnoseWarehouseCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	app, err := initApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("Starting poster storefront fulfillment service",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Any("attributes", cfg.Attributes()),
	)

	srv := server.New(ctx, server.Config{
		Port:           cfg.Port,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, app.resolver, app.registry, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := initPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return nil
}

func runDiagnoseWarehouse(cmd *cobra.Command, args []string) error {
	message, err := cmd.Flags().GetString("error")
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(carrier.AnalyzeWarehouseName(args[0], message), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
