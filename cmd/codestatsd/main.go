// Command codestatsd reads editor activity events from stdin, aggregates them into
// pulses and delivers them to the code-stats API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/spf13/pflag"

	"code-stats-daemon/internal/activity"
	"code-stats-daemon/internal/config"
	healthhandler "code-stats-daemon/internal/health/handler"
	"code-stats-daemon/internal/logging"
	"code-stats-daemon/internal/pulse"
	"code-stats-daemon/internal/pulse/client"
	"code-stats-daemon/internal/server"
	"code-stats-daemon/internal/telemetry"
	telemetryotel "code-stats-daemon/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "codestatsd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("codestatsd", pflag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "path to the config file")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	logFormat := fs.String("log-format", "", "log format: text or json (overrides LOG_FORMAT)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if *logFormat != "" {
		settings.LogFormat = *logFormat
	}
	logger, _, err := logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := config.NewSource(*configPath, logger)
	if err := source.Load(); err != nil {
		return err
	}
	if !source.Current().HasRequiredSettings() {
		written, err := config.WriteTemplate(*configPath)
		if err != nil {
			logger.Warn("config: could not write template", "path", *configPath, "error", err)
		}
		logger.Warn("config: API key not set, pulses will not be sent until it is",
			"path", *configPath, "template_written", written)
	}
	source.Watch()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:       settings.OTelEndpoint,
		Insecure:       settings.OTelInsecure,
		ServiceName:    client.ClientName,
		ServiceVersion: client.Version,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel: shutdown", "error", err)
		}
	}()

	status := telemetry.Multi(
		telemetry.NewLogEmitter(logger),
		telemetryotel.NewStatusEmitter(providers.LoggerProvider),
	)
	svc := pulse.NewService(ctx, pulse.Options{
		Config:     source,
		Poster:     client.New(client.WithTimeout(settings.HTTPTimeout)),
		Clock:      quartz.NewReal(),
		Classifier: activity.SyntaxClassifier{},
		Status:     status,
		Logger:     logger,
		Tracer:     providers.TracerProvider.Tracer("code-stats-daemon"),
		Meter:      providers.MeterProvider.Meter("code-stats-daemon"),
	})

	grpcDone := make(chan error, 1)
	if addr := settings.GRPCAddr; addr != "" {
		health := healthhandler.NewServer(logger, healthhandler.SettingsChecker(source.Current))
		health.Refresh(ctx)
		unsubscribe := source.Subscribe(func(config.Event) { health.Refresh(ctx) })
		defer unsubscribe()
		gs := server.New(logger, server.Deps{Health: health})
		go func() { grpcDone <- server.Serve(ctx, gs, addr, logger) }()
		defer health.Shutdown()
	} else {
		grpcDone <- nil
	}

	inputDone := make(chan error, 1)
	go func() {
		dec := activity.NewDecoder(os.Stdin, logger)
		inputDone <- dec.Run(ctx, func(ev activity.Event) {
			svc.HandleEvent(ctx, ev)
		})
	}()

	logger.Info("codestatsd: started", "config", source.Path(), "pulse_timeout", svc.Timer.Delay())
	select {
	case <-ctx.Done():
		logger.Info("codestatsd: signal received, shutting down")
	case err := <-inputDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("activity: input stopped", "error", err)
		} else {
			logger.Info("activity: input closed, shutting down")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	svc.Shutdown(shutdownCtx)
	if err := <-grpcDone; err != nil {
		logger.Warn("grpc: serve", "error", err)
	}
	return nil
}
