package cli

import (
	"context"
	"log/slog"

	urfave "github.com/urfave/cli/v3"

	"github.com/starford/threadlinking/internal"
	"github.com/starford/threadlinking/internal/mcpserver"
)

func (a *App) mcpCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		// Stdout carries the protocol, so logs go to stderr as JSON.
		Action: a.with(logJSON, func(ctx context.Context, _ *urfave.Command, e *env) error {
			e.logger.Info("mcp server starting", slog.String("home", e.home))
			return mcpserver.New(e.svc, a.Version, e.logger).ServeStdio(ctx, a.Stdin, a.Stdout)
		}),
	}
}

func (a *App) serveCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API with live store events",
		Flags: []urfave.Flag{
			&urfave.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides http.port)",
				Sources: urfave.EnvVars("THREADLINKING_PORT"),
			},
			&urfave.StringFlag{
				Name:    "token",
				Usage:   "Require this Bearer token (enables token auth)",
				Sources: urfave.EnvVars("THREADLINKING_TOKEN"),
			},
		},
		Action: a.with(logJSON, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			cfg := e.cfg
			if cmd.IsSet("port") {
				cfg.HTTP.Port = int(cmd.Int("port"))
			}
			if token := cmd.String("token"); token != "" {
				cfg.Auth.Mode = internal.AuthModeToken
				cfg.Auth.Token = token
			}
			if err := cfg.Validate(); err != nil {
				return usageError("invalid server settings: %s", err.Error())
			}
			return internal.Serve(ctx,
				internal.WithConfig(cfg),
				internal.WithService(e.svc),
				internal.WithLogger(e.logger))
		}),
	}
}
