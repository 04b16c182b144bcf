// Command server runs the learnhub notification and reminder API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/app"
	"github.com/charlesng35/learnhub/pkg/logger"
)

const (
	drainTimeout      = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
)

type options struct {
	configPath string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	err := run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "learnhub-server: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("learnhub-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	fs.StringVar(&opts.configPath, "config", "", "Configuration file, or a directory holding config.yaml")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file read before the configuration")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", opts.envFile, err)
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}
	generated, err := cfg.Finalize()
	if err != nil {
		return err
	}

	if err := cfg.Server.ConfigureLogging(); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.WithModule("bootstrap")
	for _, key := range generated {
		log.Warn("no value configured, generated one for this process", zap.String("key", key))
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)

	return serve(ctx, newHTTPServer(cfg.Server.Port, stack), log)
}

func newHTTPServer(port int, stack *runtimeStack) *http.Server {
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           stack.Router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	server.RegisterOnShutdown(stack.Hub.Close)
	return server
}

// serve runs server until ctx is cancelled or the listener fails, then
// drains in-flight requests.
func serve(ctx context.Context, server *http.Server, log *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		failed <- server.ListenAndServe()
	}()

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		log.Info("stopping", zap.Duration("drain_timeout", drainTimeout))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if err := <-failed; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("stopped")
	return nil
}

// loadApplicationConfig accepts either a file or a directory searched for
// config.yaml. An empty path uses ./config and the defaults.
func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig("")
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config %q not found", path)
	case err != nil:
		return nil, fmt.Errorf("config %q: %w", path, err)
	case info.IsDir():
		return app.LoadConfig("", path)
	default:
		return app.LoadConfig(path)
	}
}
