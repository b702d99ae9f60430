// Package cli implements the threadlinking command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	urfave "github.com/urfave/cli/v3"

	"github.com/starford/threadlinking/internal"
	"github.com/starford/threadlinking/internal/apperr"
	"github.com/starford/threadlinking/internal/embedding"
	"github.com/starford/threadlinking/internal/threadservice"
	pkgconfig "github.com/starford/threadlinking/pkg/config"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	// ExitTempFail (EX_TEMPFAIL) tells hooks the store was busy and a retry may succeed.
	ExitTempFail = 75
)

const (
	defaultHomeDir    = ".threadlinking"
	defaultConfigName = "config.yaml"
)

// App holds the process streams shared by every command.
type App struct {
	Version string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	// NoColor disables terminal highlights.
	NoColor bool
}

// New returns an App bound to the process streams.
func New(version string) *App {
	return &App{
		Version: version,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Run executes args (including the program name) and returns the process
// exit code. Errors are printed to Stderr.
func (a *App) Run(ctx context.Context, args []string) int {
	err := a.Command().Run(ctx, args)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(a.Stderr, "%s %s\n", a.paint(colorError).Sprint("Error:"), err.Error())
	return ExitCode(err)
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var exitErr urfave.ExitCoder
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, apperr.ErrLockTimeout):
		return ExitTempFail
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	}
	return ExitError
}

// Command builds the root command.
func (a *App) Command() *urfave.Command {
	return &urfave.Command{
		Name:    "threadlinking",
		Usage:   "Connect your files with their origin stories",
		Version: a.Version,
		Writer:  a.Stdout,
		// Errors are returned to Run instead of exiting the process.
		ExitErrHandler: func(context.Context, *urfave.Command, error) {},
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "home",
				Usage:   "Directory holding the thread index (default ~/.threadlinking)",
				Sources: urfave.EnvVars("THREADLINKING_HOME"),
			},
			&urfave.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default <home>/config.yaml)",
				Sources: urfave.EnvVars("THREADLINKING_CONFIG"),
			},
			&urfave.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug output to stderr",
			},
		},
		Commands: []*urfave.Command{
			a.snippetCommand(),
			a.createCommand(),
			a.attachCommand(),
			a.detachCommand(),
			a.showCommand(),
			a.explainCommand(),
			a.listCommand(),
			a.searchCommand(),
			a.updateCommand(),
			a.renameCommand(),
			a.deleteCommand(),
			a.auditCommand(),
			a.clearCommand(),
			a.trackCommand(),
			a.statusCommand(),
			a.analyticsCommand(),
			a.reindexCommand(),
			a.semanticSearchCommand(),
			a.watchCommand(),
			a.mcpCommand(),
			a.serveCommand(),
		},
	}
}

// logMode selects where an invocation logs.
type logMode int

const (
	logText logMode = iota
	logJSON
	logDiscard
)

// env is everything one invocation needs.
type env struct {
	home   string
	cfg    *internal.Config
	logger *slog.Logger
	svc    *threadservice.Service
}

// open loads configuration and wires the service for one command.
func (a *App) open(cmd *urfave.Command, mode logMode) (*env, error) {
	home, err := resolveHome(cmd.String("home"))
	if err != nil {
		return nil, err
	}
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = filepath.Join(home, defaultConfigName)
	}

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	level := cfg.App.LogLevel
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
		if mode == logDiscard {
			mode = logText
		}
	}
	logger := newLogger(a.Stderr, mode, level)

	embedder, err := embedding.New(cfg.Semantic.Embedding())
	switch {
	case errors.Is(err, embedding.ErrDisabled):
		embedder = nil
	case err != nil:
		return nil, err
	}

	svc := threadservice.New(threadservice.Config{
		Home:              home,
		Locker:            cfg.Store.Locker(),
		PendingExpiry:     cfg.Store.PendingExpiry,
		Embedder:          embedder,
		Provider:          cfg.Semantic.Provider,
		BackgroundTimeout: cfg.Semantic.BackgroundTimeout,
		Logger:            logger,
		Version:           a.Version,
	})

	logger.Debug("configuration loaded",
		slog.String("home", home),
		slog.String("config", configPath),
		slog.String("provider", cfg.Semantic.Provider))

	return &env{home: home, cfg: cfg, logger: logger, svc: svc}, nil
}

// close waits for background indexing, bounded by the configured timeout,
// then releases the service.
func (e *env) close(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Semantic.BackgroundTimeout)
	defer cancel()
	if err := e.svc.Wait(waitCtx); err != nil {
		e.logger.Debug("background work abandoned", slog.String("error", err.Error()))
	}
	if err := e.svc.Close(); err != nil {
		e.logger.Debug("close service", slog.String("error", err.Error()))
	}
}

// with opens an env, runs fn and closes the env.
func (a *App) with(mode logMode, fn func(ctx context.Context, cmd *urfave.Command, e *env) error) urfave.ActionFunc {
	return func(ctx context.Context, cmd *urfave.Command) error {
		e, err := a.open(cmd, mode)
		if err != nil {
			return err
		}
		defer e.close(ctx)
		return fn(ctx, cmd, e)
	}
}

func newLogger(w io.Writer, mode logMode, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	switch mode {
	case logJSON:
		return slog.New(slog.NewJSONHandler(w, opts))
	case logDiscard:
		return slog.New(slog.NewTextHandler(io.Discard, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func resolveHome(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, defaultHomeDir), nil
}

// usageError reports a missing or malformed argument.
func usageError(format string, args ...any) error {
	return apperr.Validation(apperr.CodeInvalidInput, format, args...)
}
