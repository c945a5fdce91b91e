package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/Project-Sylos/Chronicle/internal/api"
	"github.com/Project-Sylos/Chronicle/internal/config"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/sdk"
)

func main() {
	fs := flag.NewFlagSet("chronicle-api", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "configuration file path (defaults are used when empty)")
		baseURL    = fs.String("base-url", "", "history server base URL")
		apiKey     = fs.String("api-key", "", "API key sent as x-api-key")
		backend    = fs.String("cache", "", "item cache backend: memory|duckdb")
		dbPath     = fs.String("db-path", "", "DuckDB path for the duckdb cache")
		host       = fs.String("host", "", "listen host")
		port       = fs.Int("port", 0, "listen port")
		logLevel   = fs.String("log-level", "", "log level: debug|info|warn|error")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("CHRONICLE")); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, config.Overrides{
		BaseURL:  *baseURL,
		APIKey:   *apiKey,
		Backend:  *backend,
		DBPath:   *dbPath,
		LogLevel: *logLevel,
		Host:     *host,
		Port:     *port,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: cfg.Log.Output}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.Named("main")

	c, err := sdk.NewFromConfig(cfg)
	if err != nil {
		log.Fatal("failed to initialize Chronicle", logging.Err(err))
	}

	server := api.NewServer(c, &cfg.API)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		// I am here to serve.
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", logging.Err(err))
		}
		c.Close()
		return
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", logging.Err(err))
	}
	log.Info("server shutdown complete")
}
