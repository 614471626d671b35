// Package main is the entry point for the hooktrail application.
// Hooktrail is a webhook execution tracing and log query service: it
// records per-delivery execution contexts, stores them in a rotating
// append-only log, and serves historical queries, live tails, and
// reconstructed execution flows.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/myk-org/hooktrail/consts"
	"github.com/myk-org/hooktrail/internal/api/router"
	"github.com/myk-org/hooktrail/internal/config"
	"github.com/myk-org/hooktrail/internal/flow"
	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/query"
	"github.com/myk-org/hooktrail/internal/server"
	"github.com/myk-org/hooktrail/internal/stream"
	"github.com/myk-org/hooktrail/internal/trace"
	"github.com/myk-org/hooktrail/pkg/idgen"
	"github.com/myk-org/hooktrail/pkg/logger"
	"github.com/myk-org/hooktrail/pkg/telemetry"
)

// Build information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// init synchronizes build info to consts package for global access
func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

// configPath holds the path to the configuration file
var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hooktrail",
	Short: "Hooktrail - Webhook Execution Tracing and Log Query Service",
	Long: `Hooktrail records the execution of webhook deliveries as structured,
append-only logs and serves them back as filtered queries, live tails,
and reconstructed per-delivery execution flows.`,
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hooktrail server",
	Long:  `Start the HTTP server serving the log query, live tail, and flow APIs.`,
	Run:   runServe,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Hooktrail %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: config/hooktrail.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultConfigPath is used when --config is not given
const defaultConfigPath = "config/hooktrail.yaml"

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Run on defaults when no config file exists
		return config.Default(), nil
	}
	return config.Load(path)
}

// runServe starts the hooktrail server
func runServe(cmd *cobra.Command, args []string) {
	consts.SetStartedAt(time.Now())

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command line flags
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}

	// Auto-generate a JWT secret when none is configured; sessions then
	// survive only until the next restart.
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		cfg.Auth.JWTSecret = idgen.NewSecureSecret(32)
		fmt.Fprintf(os.Stderr, "[WARNING] auth.jwt_secret is empty, using an auto-generated secret for this session.\n")
		fmt.Fprintf(os.Stderr, "Tokens will not survive a restart; set auth.jwt_secret in your config file.\n\n")
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting hooktrail",
		zap.String("version", Version),
	)

	// Initialize telemetry (OpenTelemetry traces and metrics)
	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	// Open the log store: the single writer every producer funnels through
	store, err := logstore.Open(cfg.Store.StoreConfig())
	if err != nil {
		logger.Fatal("Failed to open log store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close log store", zap.Error(err))
		}
	}()

	// Route hook-correlated zap entries into the store
	logger.SetHookCapture(store)
	defer logger.SetHookCapture(nil)

	// Wire services
	recorder := trace.NewRecorder(store)
	engine := query.NewEngine(store, cfg.Query.ScanCap)
	broker := stream.NewBroker(cfg.Stream.BufferSize)
	broker.Attach(store)
	defer broker.Close()
	flows := flow.NewService(engine)

	// Start the daily retention sweep for context-summary files
	retention := logstore.NewRetentionService(store, cfg.Store.RetentionDays)
	if err := retention.Start(); err != nil {
		logger.Warn("Failed to start retention service", zap.Error(err))
	} else {
		defer retention.Stop()
	}

	srv := server.New(cfg, router.Deps{
		Engine:   engine,
		Broker:   broker,
		Flows:    flows,
		Recorder: recorder,
	})
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
}
