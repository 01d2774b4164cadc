// Package cmd implements the command-line interface for crewview.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agenticgokit/agenticgokit/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/config"
	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/utils"
)

var (
	cfgFile        string
	verbose        bool
	debug          bool
	traceEnabled   bool
	traceExporter  string
	traceEndpoint  string
	traceSample    float64
	serverURL      string
	tracerShutdown func(context.Context) error
	logger         *zerolog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crewview",
	Short: "Live visualization client for crews and flows",
	Long: `crewview connects to a crew/flow orchestration backend and shows what
your agents are doing while they run.

Features:
  • Live crew and flow dashboards over WebSocket
  • Trace exploration, metrics and Mermaid diagrams
  • Crew chat with persisted threads
  • Tool execution and evaluation runs
  • A local read-only JSON API for other tools

Get started with: crewview crews`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(); err != nil {
			return err
		}
		startTracing(cmd)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracerShutdown == nil {
			return
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := tracerShutdown(ctx); err != nil {
			GetLogger().Debug().Err(err).Msg("tracer shutdown")
		}
	},
}

// Execute runs the root command. Network failures are rewritten into
// user errors that name the backend address.
func Execute() error {
	err := rootCmd.Execute()
	return utils.ExplainBackendError(viper.GetString(config.KeyServerURL), err)
}

// setupLogging builds the process logger from --debug
func setupLogging() error {
	l, err := utils.NewLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	return nil
}

// startTracing installs the observability tracer when --trace is set.
// The API client picks it up through the global otel provider.
func startTracing(cmd *cobra.Command) {
	traceEnabled = viper.GetBool("trace")
	if !traceEnabled {
		return
	}
	traceExporter = viper.GetString("trace_exporter")
	traceEndpoint = viper.GetString("trace_endpoint")
	traceSample = viper.GetFloat64("trace_sample")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithRunID(ctx, generateRunID())
	ctx = observability.WithLogger(ctx, logger)
	cmd.SetContext(ctx)

	shutdown, err := observability.SetupTracer(ctx, observability.TracerConfig{
		ServiceName:    "crewview",
		ServiceVersion: Version,
		Environment:    viper.GetString("environment"),
		Endpoint:       traceEndpoint,
		Exporter:       traceExporter,
		SampleRate:     traceSample,
		Debug:          debug,
		FilePath:       traceEndpoint,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		return
	}
	tracerShutdown = shutdown
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crewview.toml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "backend base URL (default http://localhost:5000)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug mode")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "enable tracing of crewview itself")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "console", "trace exporter: console|otlp|file")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP endpoint URL or file path (for file exporter)")
	rootCmd.PersistentFlags().Float64Var(&traceSample, "trace-sample", 1.0, "trace sample rate (0.0-1.0)")

	_ = viper.BindPFlag(config.KeyServerURL, rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("trace", rootCmd.PersistentFlags().Lookup("trace"))
	_ = viper.BindPFlag("trace_exporter", rootCmd.PersistentFlags().Lookup("trace-exporter"))
	_ = viper.BindPFlag("trace_endpoint", rootCmd.PersistentFlags().Lookup("trace-endpoint"))
	_ = viper.BindPFlag("trace_sample", rootCmd.PersistentFlags().Lookup("trace-sample"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(".crewview")
	}

	viper.SetEnvPrefix("CREWVIEW")
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("trace_exporter", "console")
	viper.SetDefault("trace_sample", 1.0)
	viper.SetDefault("environment", "dev")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// GetLogger returns the configured logger
func GetLogger() *zerolog.Logger {
	if logger == nil {
		if l, err := utils.NewLogger(false); err == nil {
			logger = l
		} else {
			l := zerolog.New(os.Stderr).With().Timestamp().Logger()
			logger = &l
		}
	}
	return logger
}

// loadConfig resolves the settings for this invocation
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newClient builds the backend client from the resolved settings
func newClient() (*api.Client, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	return api.NewClient(cfg.ServerURL, cfg.Timeout, GetLogger()), cfg, nil
}

// parseKind validates the crew|flow positional argument
func parseKind(arg string) (protocol.Kind, error) {
	kind, err := protocol.ParseKind(strings.ToLower(arg))
	if err != nil {
		return "", utils.NewValidationError("kind", err.Error())
	}
	return kind, nil
}

// parseInputs turns repeated key=value flags into an input map
func parseInputs(pairs []string) (map[string]string, error) {
	inputs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, utils.NewValidationError("input", fmt.Sprintf("%q is not key=value", p))
		}
		inputs[strings.TrimSpace(k)] = v
	}
	return inputs, nil
}

func generateRunID() string {
	return "run-" + uuid.NewString()
}
