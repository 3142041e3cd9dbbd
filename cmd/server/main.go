package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"investcalc/internal/api"
	"investcalc/internal/config"
	"investcalc/internal/logging"
	"investcalc/pkg/investcalc"
	"investcalc/pkg/quote"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

type serverFlags struct {
	dataDir         string
	dbPath          string
	host            string
	port            int
	logLevel        string
	refreshInterval time.Duration
}

func parseFlags(args []string, output io.Writer) (serverFlags, error) {
	var f serverFlags
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.dataDir, "data-dir", "", "Directory for the ledger database and logs")
	fs.StringVar(&f.dbPath, "db", "", "Ledger database path (overrides data dir and config)")
	fs.StringVar(&f.host, "host", "127.0.0.1", "Host to bind the server to")
	fs.IntVar(&f.port, "port", 8000, "Port to run the server on")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.DurationVar(&f.refreshInterval, "refresh-interval", 0, "Refresh missing prices periodically (0 disables)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.port < 0 {
		return f, fmt.Errorf("invalid port %d", f.port)
	}
	return f, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := run(ctx, os.Args[1:], nil); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			slog.Error("server failed", "err", err)
		}
		exit(1)
	}
}

// run serves until ctx is done. When ready is not nil it receives the bound
// address once the listener is up.
func run(ctx context.Context, args []string, ready chan<- string) error {
	f, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if f.dataDir != "" {
		config.SetRuntimeDataDir(f.dataDir)
	}
	if f.dbPath != "" {
		config.SetRuntimeDBPath(f.dbPath)
	}
	config.SetRuntimePort(f.port)
	level, ok := logging.ParseLevel(f.logLevel)
	if !ok {
		return fmt.Errorf("invalid log level %q", f.logLevel)
	}

	logDir, err := config.GetLogDir()
	if err != nil {
		return fmt.Errorf("resolve log dir: %w", err)
	}
	logger, writer, err := logging.NewLogger(logDir, level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	dbPath, err := config.GetDBPath()
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	core, err := investcalc.OpenWithOptions(investcalc.Options{DBPath: dbPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	cfg := config.LoadUserConfig()
	registry := quote.NewDefaultRegistry(quote.DefaultConfig{
		Options:     quote.Options{Logger: logger, CacheTTL: cfg.QuoteCacheTTL()},
		EODHDAPIKey: cfg.APIKey(),
	})
	view := investcalc.NewView(core)
	refresher := investcalc.NewRefresher(registry, view, investcalc.RefresherOptions{
		Logger:       logger,
		FetchTimeout: cfg.QuoteTimeout(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Watch loads the view and keeps it in step with the ledger.
	go view.Watch(ctx)
	if f.refreshInterval > 0 {
		go refreshLoop(ctx, view, refresher, f.refreshInterval, logger)
	}
	if os.Getenv("INVESTCALC_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	handler := api.NewRouter(core, api.Options{
		Logger:    logger,
		View:      view,
		Refresher: refresher,
		Delimiter: cfg.Delimiter(),
	})
	handler = middleware.Compress(5)(handler)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", f.host, f.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", listener.Addr().String(), "db", dbPath, "providers", registry.Providers())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	if ready != nil {
		ready <- listener.Addr().String()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.Info("server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	return nil
}

// refreshLoop starts a price refresh cycle every interval. A tick that finds
// a cycle still running is skipped.
func refreshLoop(ctx context.Context, view *investcalc.View, refresher *investcalc.Refresher, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ok := view.RefreshPrices(refresher); !ok {
				logger.Debug("scheduled price refresh skipped")
			}
		}
	}
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}
