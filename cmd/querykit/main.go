// Package main provides the querykit command line and HTTP server.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TFMV/querykit/cmd/querykit/config"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "querykit",
		Short: "SQL statement classification, validation and decomposition",
		Long: `querykit classifies SQL statements, validates them against a database
engine, and splits SELECT statements into their clauses and back.

Example:
  querykit parse "SELECT id FROM users WHERE id = ?"
  querykit serve --config ./querykit.yaml`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("dialect", "mysql", "engine dialect (duckdb, mysql, postgres, sqlite)")
	flags.String("dsn", "", "engine DSN used for parsing")
	flags.String("syntax-dsn", "", "engine DSN used for syntax validation")
	flags.Bool("explain", false, "attach plans to parsed SELECT statements")

	bindFlags(v, flags, map[string]string{
		"config":     "config",
		"log-level":  "server.log_level",
		"dialect":    "engine.dialect",
		"dsn":        "engine.dsn",
		"syntax-dsn": "engine.syntax_dsn",
		"explain":    "engine.explain",
	})

	rootCmd.AddCommand(
		newServeCmd(v),
		newClassifyCmd(),
		newValidateCmd(v),
		newParseCmd(v),
		newDecomposeCmd(),
		newReconstructCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "querykit\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// bindFlags binds each flag to its configuration key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Errorf("failed to bind flag %s: %w", name, err))
		}
	}
}

// loadConfig merges defaults, the config file, QUERYKIT_ environment
// variables and flags, in increasing order of precedence.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	v.SetEnvPrefix("QUERYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment variables reach
// Unmarshal. The DSNs stay unset; Validate picks them per dialect.
func setDefaults(v *viper.Viper) {
	d := config.DefaultConfig()

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("engine.dialect", d.Engine.Dialect)
	v.SetDefault("engine.max_open_connections", d.Engine.MaxOpenConnections)
	v.SetDefault("engine.max_idle_connections", d.Engine.MaxIdleConnections)
	v.SetDefault("engine.conn_max_lifetime", d.Engine.ConnMaxLifetime)
	v.SetDefault("engine.conn_max_idle_time", d.Engine.ConnMaxIdleTime)
	v.SetDefault("engine.connection_timeout", d.Engine.ConnectionTimeout)
	v.SetDefault("engine.health_check_period", d.Engine.HealthCheckPeriod)
	v.SetDefault("engine.circuit_breaker.enabled", d.Engine.CircuitBreaker.Enabled)
	v.SetDefault("engine.circuit_breaker.threshold", d.Engine.CircuitBreaker.Threshold)
	v.SetDefault("engine.circuit_breaker.timeout", d.Engine.CircuitBreaker.Timeout)
	v.SetDefault("engine.explain", d.Engine.Explain)
	v.SetDefault("engine.verdict_cache.enabled", d.Engine.VerdictCache.Enabled)
	v.SetDefault("engine.verdict_cache.max_size", d.Engine.VerdictCache.MaxSize)
	v.SetDefault("engine.verdict_cache.ttl", d.Engine.VerdictCache.TTL)
	_ = v.BindEnv("engine.dsn")
	_ = v.BindEnv("engine.syntax_dsn")
	_ = v.BindEnv("engine.motherduck_token")

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.type", d.Auth.Type)
	v.SetDefault("auth.jwt_auth.secret", "")
	v.SetDefault("auth.jwt_auth.issuer", "")
	v.SetDefault("auth.jwt_auth.audience", "")
}

func setupLogging(w io.Writer, level string) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	// Set log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	if logLevel == zerolog.DebugLevel {
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			if i := strings.LastIndexByte(file, '/'); i >= 0 {
				short = file[i+1:]
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	}

	logger := zerolog.New(w).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "querykit")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
