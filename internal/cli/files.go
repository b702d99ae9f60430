package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/starford/threadlinking/internal/validate"
	"github.com/starford/threadlinking/internal/watch"
)

func (a *App) attachCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "attach",
		Usage:     "Link a file to a thread",
		ArgsUsage: "<tag> <file>",
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag, file := cmd.Args().Get(0), cmd.Args().Get(1)
			if tag == "" || file == "" {
				return usageError("usage: threadlinking attach <tag> <file>")
			}
			res, err := e.svc.Attach(ctx, tag, file)
			if err != nil {
				return err
			}
			if res.AlreadyLinked {
				a.println("File already linked to thread '" + res.Tag + "'.")
				return nil
			}
			if !res.FileExists {
				a.warn("Warning: %s does not exist (linked anyway).", res.Path)
			}
			a.ok("Linked %s to '%s'.", res.Path, res.Tag)
			return nil
		}),
	}
}

func (a *App) detachCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "detach",
		Usage:     "Unlink a file from a thread",
		ArgsUsage: "<tag> <file>",
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag, file := cmd.Args().Get(0), cmd.Args().Get(1)
			if tag == "" || file == "" {
				return usageError("usage: threadlinking detach <tag> <file>")
			}
			res, err := e.svc.Detach(ctx, tag, file)
			if err != nil {
				return err
			}
			a.ok("Unlinked %s from '%s'.", res.Path, res.Tag)
			return nil
		}),
	}
}

func (a *App) explainCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "explain",
		Usage:     "Show the threads linked to a file",
		ArgsUsage: "<file>",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(_ context.Context, cmd *urfave.Command, e *env) error {
			file := cmd.Args().First()
			if file == "" {
				return usageError("missing file path")
			}
			res, err := e.svc.Explain(file)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res)
			}
			if len(res.Threads) == 0 {
				a.println("No threads linked to " + res.Path + ".")
				return nil
			}
			a.printf("%s\n", res.Path)
			for _, hit := range res.Threads {
				a.println()
				a.printf("  %s  %s\n", a.tag(hit.Tag), hit.Summary)
				if hit.ChatURL != "" {
					a.printf("  URL: %s\n", hit.ChatURL)
				}
				for i, sn := range hit.Snippets {
					a.printf("  [%d] %s @ %s\n", i+1, sn.Source, formatDate(sn.Timestamp))
					a.printf("      %s\n", validate.Truncate(firstLine(sn.Content), 70))
				}
			}
			return nil
		}),
	}
}

func (a *App) trackCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "track",
		Usage:     "Track a modified file for later linking (called by editor hooks)",
		ArgsUsage: "<file>",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "quiet", Value: true, Usage: "Suppress output"},
		},
		// Never fails: hooks call it on every write.
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			file := cmd.Args().First()
			if file == "" {
				return nil
			}
			e, err := a.open(cmd, logDiscard)
			if err != nil {
				return nil
			}
			defer e.close(ctx)
			tracked, err := e.svc.Track(ctx, file)
			if err != nil {
				e.logger.Debug("track failed", slog.String("path", file), slog.String("error", err.Error()))
				return nil
			}
			if tracked && !cmd.Bool("quiet") {
				if abs, absErr := validate.ResolvePath(file); absErr == nil {
					file = abs
				}
				a.println("Tracked: " + file)
			}
			return nil
		},
	}
}

func (a *App) watchCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "watch",
		Usage:     "Track every file written under a directory until interrupted",
		ArgsUsage: "[dir]",
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			dir := cmd.Args().First()
			if dir == "" {
				dir = "."
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			a.printf("Watching %s (Ctrl+C to stop)\n", root)
			return watch.Watch(ctx, root, e.cfg.Watch.Ignore, e.logger, func(path string) {
				// Store writes would otherwise track themselves.
				if within(e.home, path) {
					return
				}
				tracked, err := e.svc.Track(ctx, path)
				if err != nil {
					e.logger.Warn("track failed", slog.String("path", path), slog.String("error", err.Error()))
					return
				}
				if tracked {
					a.println("Tracked: " + path)
				}
			})
		}),
	}
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
