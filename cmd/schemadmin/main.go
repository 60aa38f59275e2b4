// Package main is the entry point for the schemadmin server.
// It wires all dependencies together and exposes them as CLI commands.
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
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/internal/observability"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "schemadmin",
		Short: "Metadata-driven admin console backend",
		Long: `schemadmin reads a backend's self-describing endpoint catalog and serves
typed resources, form models, relation options and edit sessions to an
administration console.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "resources",
			Short: "List the resources derived from the endpoint catalog",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runResources(cmd.Context(), configPath, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "options <resource> <field>",
			Short: "Resolve the options of a relation or choice field",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOptions(cmd.Context(), configPath, args[0], args[1], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "schemadmin %s (%s)\n", version, commit)
			},
		},
	)
	return root
}

// setup loads configuration and builds the logger shared by all commands.
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, nil, fmt.Errorf("logger error: %w", err)
	}
	return cfg, logger, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	observability.Version = version
	observability.Commit = commit

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "schemadmin", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return err
	}

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(prometheus.DefaultRegisterer)
	}

	a, err := buildApp(cfg, logger, metrics)
	if err != nil {
		logger.Error("wiring failed", zap.Error(err))
		return err
	}
	defer a.close()

	// A failed initial load leaves the service not ready; the catalog can
	// be reloaded later through the API.
	if n, err := a.loader.Reload(ctx); err != nil {
		logger.Warn("initial catalog load failed", zap.Error(err))
	} else {
		logger.Info("catalog loaded", zap.Int("resources", n))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go a.runSweeper(bgCtx)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("schema_source", cfg.Schema.Source),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	for _, id := range a.sessions.IDs() {
		_ = a.sessions.Close(id)
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// loadApp builds the engine and loads the catalog for one-shot commands.
func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	if _, err := a.loader.Reload(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func runResources(ctx context.Context, configPath string, out io.Writer) error {
	a, err := loadApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tAPP\tFIELDS\tCREATE\tREAD\tUPDATE\tDELETE")
	for _, res := range a.registry.Resources() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%v\t%v\t%v\n",
			res.Name, res.App, len(res.Fields), res.CanCreate, res.CanRead, res.CanUpdate, res.CanDelete)
	}
	return tw.Flush()
}

func runOptions(ctx context.Context, configPath, resourceName, fieldName string, out io.Writer) error {
	a, err := loadApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	res, ok := a.registry.Resource(resourceName)
	if !ok {
		return fmt.Errorf("resource %q not found", resourceName)
	}
	f, ok := res.Field(fieldName)
	if !ok {
		return fmt.Errorf("field %q not found on %s", fieldName, resourceName)
	}
	resolution, err := a.relations.Resolve(ctx, f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resolution)
}
