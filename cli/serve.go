package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/pez/config"
	"github.com/petal-labs/pez/dispenser"
	pezotel "github.com/petal-labs/pez/otel"
	"github.com/petal-labs/pez/sequence"
	"github.com/petal-labs/pez/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pez HTTP server",
		RunE:  runServe,
	}

	addConfigFlag(cmd)
	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().String("probe-schedule", server.DefaultProbeSchedule, "Cron schedule of the counter store health probe")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP collector host:port for traces (disabled when empty)")
	cmd.Flags().Bool("otlp-insecure", false, "Send traces over plain HTTP")
	cmd.Flags().Bool("provision", false, "Create missing counter records before serving")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	probeSchedule, _ := cmd.Flags().GetString("probe-schedule")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	otlpInsecure, _ := cmd.Flags().GetBool("otlp-insecure")
	provision, _ := cmd.Flags().GetBool("provision")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	logger.Info("starting pez",
		"driver", cfg.DB.Driver,
		"db_host", cfg.DB.Host,
		"db_name", cfg.DB.Name,
		"max_count", cfg.MaxCount,
	)

	// Signal handling
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := pezotel.SetupTracing(ctx, pezotel.TracingConfig{
		Endpoint: otlpEndpoint,
		Insecure: otlpInsecure,
	})
	if err != nil {
		return exitError(exitConfig, "configuring tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	st, err := connectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	// The memory store starts empty on every run.
	if provision || cfg.DB.Driver == config.DriverMemory {
		if err := st.Provision(ctx, builtinSeeds()); err != nil {
			return exitError(exitStore, "provisioning counters: %v", err)
		}
	}

	metrics := server.NewHTTPMetrics()
	meterProvider, err := pezotel.NewPrometheusMeterProvider(metrics.Registerer(), "pez")
	if err != nil {
		return fmt.Errorf("initializing metrics exporter: %w", err)
	}
	otelapi.SetMeterProvider(meterProvider)
	defer func() {
		_ = meterProvider.Shutdown(context.Background())
	}()

	observer, err := pezotel.NewDispenseObserver(
		otelapi.GetMeterProvider().Meter("pez/dispenser"),
		otelapi.GetTracerProvider().Tracer("pez/dispenser"),
	)
	if err != nil {
		return fmt.Errorf("initializing dispense observability: %w", err)
	}
	svc, err := dispenser.NewService(dispenser.ServiceConfig{
		Store:    st,
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating dispenser: %w", err)
	}

	forward, err := sequence.NewEngine(sequence.Forward())
	if err != nil {
		return err
	}
	backward, err := sequence.NewEngine(sequence.Backward())
	if err != nil {
		return err
	}

	probe, err := server.NewStoreProbe(server.StoreProbeConfig{
		Store:    st,
		Schedule: probeSchedule,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitConfig, "configuring store probe: %v", err)
	}
	if err := probe.Start(ctx); err != nil {
		return fmt.Errorf("starting store probe: %w", err)
	}
	defer func() {
		_ = probe.Stop(context.Background())
	}()

	apiServer, err := server.NewServer(server.ServerConfig{
		Dispenser:  svc,
		Forward:    forward,
		Backward:   backward,
		MaxCount:   cfg.MaxCount,
		RetryAfter: cfg.RetryAfter,
		Probe:      probe,
		Metrics:    metrics,
		CORSOrigin: corsOrigin,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "pez listening on %s\n", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}
