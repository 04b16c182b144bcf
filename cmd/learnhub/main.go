package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/localstore"
	"github.com/charlesng35/learnhub/internal/notifycenter"
	"github.com/charlesng35/learnhub/internal/reminders"
	"github.com/charlesng35/learnhub/internal/tui"
	"github.com/charlesng35/learnhub/pkg/client"
	"github.com/charlesng35/learnhub/pkg/logger"
)

type settings struct {
	Server   string
	Token    string
	User     string
	State    string
	Demo     bool
	LogFile  string
	LogLevel string
	PageSize int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	s, err := resolveSettings(args)
	if err != nil {
		return err
	}

	if err := configureFileLogging(s.LogFile, s.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("learnhub")

	api, err := client.New(s.Server, s.Token)
	if err != nil {
		return err
	}
	defer api.Close()

	identity, err := api.Identity()
	if err != nil {
		return err
	}
	viewer, err := checkViewer(identity, s.User)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.State), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	store, err := localstore.Open(s.State)
	if err != nil {
		return err
	}
	defer store.Close()
	if purged, err := store.PurgeExpired(ctx); err != nil {
		log.Warn("purge local state", zap.Error(err))
	} else if purged > 0 {
		log.Debug("purged expired local state", zap.Int64("entries", purged))
	}

	go func() {
		if err := api.Run(ctx); err != nil {
			log.Error("realtime stream stopped", zap.Error(err))
		}
	}()

	updates := tui.NewUpdates()
	center := notifycenter.New(api, viewer.ID,
		notifycenter.WithPageSize(s.PageSize),
		notifycenter.WithFallback(s.Demo),
		notifycenter.WithOnChange(updates.Push),
	)
	center.Start(ctx)
	defer center.Close()

	state := reminders.NewViewerState(store, viewer.ID)
	gate := reminders.NewGate(reminders.NewMemorySession(), state)
	popup := reminders.NewPopup(gate, api, state, reminders.WithFallback(s.Demo), reminders.WithRemote(api))

	log.Info("starting terminal client",
		zap.String("server", s.Server),
		zap.String("viewer", viewer.ID),
		zap.String("role", viewer.Role),
		zap.Bool("demo", s.Demo),
	)

	program := tea.NewProgram(tui.New(ctx, center, popup, viewer, updates), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}

// resolveSettings merges flags over LEARNHUB_* environment variables over
// defaults.
func resolveSettings(args []string) (settings, error) {
	fs := flag.NewFlagSet("learnhub", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	fs.String("server", "", "Server base URL (env LEARNHUB_SERVER)")
	fs.String("token", "", "Access token (env LEARNHUB_TOKEN)")
	fs.String("user", "", "Expected viewer id; must match the token's user (env LEARNHUB_USER)")
	fs.String("state", "", "Path of the local state database (env LEARNHUB_STATE)")
	fs.Bool("demo", false, "Show demonstration data when the server is unreachable (env LEARNHUB_DEMO)")
	fs.String("log-file", "", "Write logs to this file; logging is off when empty (env LEARNHUB_LOG_FILE)")
	fs.String("log-level", "", "Log level (env LEARNHUB_LOG_LEVEL)")
	fs.Int("page-size", 0, "Number of notifications to load (env LEARNHUB_PAGE_SIZE)")

	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("LEARNHUB")
	v.AutomaticEnv()
	v.SetDefault("server", "http://localhost:8000")
	v.SetDefault("state", defaultStatePath())
	v.SetDefault("demo", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("page_size", 20)
	v.SetDefault("token", "")
	v.SetDefault("user", "")
	v.SetDefault("log_file", "")

	fs.Visit(func(f *flag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	s := settings{
		Server:   strings.TrimSpace(v.GetString("server")),
		Token:    strings.TrimSpace(v.GetString("token")),
		User:     strings.TrimSpace(v.GetString("user")),
		State:    strings.TrimSpace(v.GetString("state")),
		Demo:     v.GetBool("demo"),
		LogFile:  strings.TrimSpace(v.GetString("log_file")),
		LogLevel: v.GetString("log_level"),
		PageSize: v.GetInt("page_size"),
	}
	if s.Token == "" {
		return settings{}, errors.New("an access token is required (--token or LEARNHUB_TOKEN)")
	}
	if s.State == "" {
		return settings{}, errors.New("a state path is required (--state or LEARNHUB_STATE)")
	}
	return s, nil
}

// checkViewer confirms an explicitly requested user against the token. The
// server scopes every call by the token's user, so a different id would only
// hide the viewer's own data.
func checkViewer(identity reminders.Viewer, user string) (reminders.Viewer, error) {
	if user != "" && user != identity.ID {
		return reminders.Viewer{}, fmt.Errorf("user %q does not match the access token's user %q", user, identity.ID)
	}
	return identity, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "learnhub", "state.db")
}

// configureFileLogging routes the global logger to path so log lines do not
// corrupt the terminal UI.
func configureFileLogging(path, level string) error {
	if path == "" {
		logger.Replace(nil)
		return nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(logger.ParseLevel(level))
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger.Replace(built)
	return nil
}
