// Package main is the entry point for the Envialite mail-merge server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/envialite/envialite/internal/config"
	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/delivery/ses"
	"github.com/envialite/envialite/internal/delivery/smtp"
	"github.com/envialite/envialite/internal/delivery/stdout"
	"github.com/envialite/envialite/internal/server"
	apitls "github.com/envialite/envialite/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	// Select delivery transport
	transport := selectTransport(cfg)

	srv := server.New(server.Config{
		Transport:    transport,
		MaxBodyBytes: cfg.HTTP.MaxBodySize,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := apitls.LoadOrGenerateTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			slog.Error("failed to setup TLS", "error", err)
			os.Exit(1)
		}
		httpServer.TLSConfig = tlsConfig
	}

	tlsMode := "disabled"
	if cfg.TLS.Enabled {
		tlsMode = "self-signed"
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
			tlsMode = "file"
		}
	}

	slog.Info("starting envialite",
		"listen", cfg.HTTP.Listen,
		"transport", transport.Name(),
		"tls_mode", tlsMode,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			errCh <- httpServer.ListenAndServeTLS("", "")
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("envialite stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectTransport chooses the delivery backend based on configuration.
// The default "smtp" transport uses the SMTP settings carried by each
// request; "ses" and "stdout" ignore them.
func selectTransport(cfg *config.Config) delivery.Transport {
	switch cfg.Delivery.Provider {
	case "smtp":
		return smtp.New()

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("SES transport selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		slog.Info("using AWS SES transport",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		t, err := ses.New(context.Background(), ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			slog.Error("failed to create SES transport", "error", err)
			os.Exit(1)
		}
		return t

	case "stdout":
		slog.Info("using stdout transport")
		return stdout.New()

	default:
		slog.Error("unknown delivery provider", "provider", cfg.Delivery.Provider)
		os.Exit(1)
		return nil
	}
}
