package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/querykit/pkg/decomposer"
	"github.com/TFMV/querykit/pkg/handlers"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the querykit HTTP server",
		Long: `Start the querykit HTTP server with the specified configuration.

Example:
  querykit serve --config ./querykit.yaml
  querykit serve --address 0.0.0.0:8080 --dialect sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("address", "0.0.0.0:8080", "server listen address")
	flags.Duration("request-timeout", 30*time.Second, "per request timeout")
	flags.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	flags.Bool("metrics", true, "enable Prometheus metrics")
	flags.String("metrics-address", "", "separate metrics listen address (default: serve on the main address)")
	flags.Bool("auth", false, "enable authentication")

	bindFlags(v, flags, map[string]string{
		"address":          "server.address",
		"request-timeout":  "server.request_timeout",
		"shutdown-timeout": "server.shutdown_timeout",
		"metrics":          "metrics.enabled",
		"metrics-address":  "metrics.address",
		"auth":             "auth.enabled",
	})
	return cmd
}

func runServer(ctx context.Context, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(os.Stdout, cfg.Server.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("dialect", cfg.Engine.Dialect).
		Msg("Starting querykit")

	a, err := newApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing connection pools")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 2)

	var metricsSrv *metrics.MetricsServer
	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		ms := a.metricsServer()
		metricsSrv = ms
		go func() {
			logger.Info().Str("address", ms.Address()).Str("path", ms.Path()).Msg("Starting metrics server")
			if err := ms.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address).
			Bool("auth", cfg.Auth.Enabled).
			Bool("metrics", cfg.Metrics.Enabled).
			Msg("Server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case err := <-serverErrCh:
		return err
	}

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Server shutdown complete")
	return nil
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [query]",
		Short: "Print the kind of a statement",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd, args)
			if err != nil {
				return err
			}
			kind := decomposer.Classify(query)
			return writeJSON(cmd.OutOrStdout(), handlers.ClassifyResponse{QueryType: int(kind), Kind: kind.String()})
		},
	}
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [query]",
		Short: "Check a statement against the engine",
		Long: `Check a statement against the engine. By default only syntax errors make
a statement invalid; --strict also rejects statements the engine cannot
prepare, such as references to missing tables.`,
	}
	strict := cmd.Flags().Bool("strict", false, "require the statement to prepare")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		query, err := readQuery(cmd, args)
		if err != nil {
			return err
		}
		return withApp(cmd, v, func(a *app) error {
			var valid bool
			if *strict {
				valid = a.service.ValidateStrict(cmd.Context(), query)
			} else {
				valid = a.service.Validate(cmd.Context(), query)
			}
			return writeJSON(cmd.OutOrStdout(), handlers.ValidateResponse{Valid: valid})
		})
	}
	return cmd
}

func newParseCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [query]",
		Short: "Validate a statement and report its kind and parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, v, func(a *app) error {
				return writeJSON(cmd.OutOrStdout(), a.service.Parse(cmd.Context(), query))
			})
		},
	}
}

func newDecomposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decompose [query]",
		Short: "Split a statement into its clauses",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), decomposer.Decompose(query))
		},
	}
}

func newReconstructCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconstruct [components-json]",
		Short: "Rebuild a statement from decomposed components",
		Long: `Rebuild a statement from the JSON printed by decompose. The JSON is read
from the argument, or from stdin when the argument is absent or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return fmt.Errorf("malformed components JSON: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), handlers.ReconstructResponse{Query: decomposer.ReconstructMap(m)})
		},
	}
}

// withApp builds an app for a single command. Metrics are not collected
// and logs go to stderr.
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(*app) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Metrics.Enabled = false

	a, err := newApp(cfg, setupLogging(cmd.ErrOrStderr(), cfg.Server.LogLevel))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// readQuery joins the arguments with spaces. No arguments, or a single "-",
// reads the query from stdin.
func readQuery(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 1 {
		return strings.Join(args, " "), nil
	}
	return readInput(cmd, args)
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
