package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/starford/threadlinking/internal/threadservice"
	"github.com/starford/threadlinking/internal/validate"
)

func (a *App) snippetCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "snippet",
		Usage:     "Add a conversation snippet to a thread (auto-creates if needed)",
		ArgsUsage: "<tag> [content|-]",
		Flags: []urfave.Flag{
			&urfave.StringFlag{Name: "file", Usage: "Read snippet content from a file"},
			&urfave.StringFlag{Name: "source", Usage: "Source of the snippet (claude-code, chatgpt, manual)"},
			&urfave.StringFlag{Name: "url", Usage: "URL of the conversation"},
			&urfave.StringFlag{Name: "summary", Usage: "Summary for an auto-created thread"},
			&urfave.StringFlag{Name: "tags", Usage: "Comma separated snippet tags (e.g. auth,decision)"},
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag := cmd.Args().Get(0)
			if tag == "" {
				return usageError("missing thread tag")
			}
			content, err := a.snippetContent(cmd)
			if err != nil {
				return err
			}
			source := cmd.String("source")
			if source == "" {
				source = validate.DetectSource()
			}
			in := threadservice.SnippetInput{
				Tag:     tag,
				Content: content,
				Source:  source,
				URL:     cmd.String("url"),
				Summary: cmd.String("summary"),
			}
			if raw := cmd.String("tags"); raw != "" {
				in.Tags = validate.ParseTags(raw)
			}

			res, err := e.svc.AddSnippet(ctx, in)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res)
			}
			if res.Created {
				a.ok("Created thread '%s' and added snippet.", res.Tag)
			} else {
				a.ok("Added snippet to '%s' (%d %s).", res.Tag, res.SnippetCount, plural(res.SnippetCount, "snippet", "snippets"))
			}
			tags := ""
			if len(in.Tags) > 0 {
				tags = " [" + strings.Join(in.Tags, ", ") + "]"
			}
			a.printf("   %s %s\n", a.muted("["+source+"]"+tags), validate.Truncate(strings.TrimSpace(content), 100))
			return nil
		}),
	}
}

// snippetContent reads the snippet from --file, stdin ("-") or the second argument.
func (a *App) snippetContent(cmd *urfave.Command) (string, error) {
	if path := cmd.String("file"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read snippet file: %w", err)
		}
		return string(b), nil
	}
	switch arg := cmd.Args().Get(1); arg {
	case "":
		return "", usageError("snippet content cannot be empty")
	case "-":
		return readAll(a.Stdin)
	default:
		return arg, nil
	}
}

func (a *App) createCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "create",
		Usage:     "Create an empty thread",
		ArgsUsage: "<tag> [summary]",
		Flags: []urfave.Flag{
			&urfave.StringFlag{Name: "chat-url", Usage: "URL of the originating conversation"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag := cmd.Args().Get(0)
			if tag == "" {
				return usageError("missing thread tag")
			}
			res, err := e.svc.Create(ctx, threadservice.CreateInput{
				Tag:     tag,
				Summary: strings.Join(cmd.Args().Slice()[1:], " "),
				ChatURL: cmd.String("chat-url"),
			})
			if err != nil {
				return err
			}
			a.ok("Created thread '%s'.", res.Tag)
			return nil
		}),
	}
}

func (a *App) updateCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "update",
		Usage:     "Update a thread's summary or chat URL",
		ArgsUsage: "<tag>",
		Flags: []urfave.Flag{
			&urfave.StringFlag{Name: "summary", Usage: "New summary"},
			&urfave.StringFlag{Name: "chat-url", Usage: "New chat URL (empty clears it)"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag := cmd.Args().Get(0)
			if tag == "" {
				return usageError("missing thread tag")
			}
			var in threadservice.UpdateInput
			if cmd.IsSet("summary") {
				v := cmd.String("summary")
				in.Summary = &v
			}
			if cmd.IsSet("chat-url") {
				v := cmd.String("chat-url")
				in.ChatURL = &v
			}
			if _, err := e.svc.UpdateMeta(ctx, tag, in); err != nil {
				return err
			}
			a.ok("Updated thread '%s'.", tag)
			return nil
		}),
	}
}

func (a *App) renameCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "rename",
		Usage:     "Rename a thread",
		ArgsUsage: "<old> <new>",
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			oldTag, newTag := cmd.Args().Get(0), cmd.Args().Get(1)
			if oldTag == "" || newTag == "" {
				return usageError("usage: threadlinking rename <old> <new>")
			}
			if err := e.svc.Rename(ctx, oldTag, newTag); err != nil {
				return err
			}
			a.ok("Renamed '%s' to '%s'.", oldTag, newTag)
			return nil
		}),
	}
}

func (a *App) deleteCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "delete",
		Usage:     "Delete a thread",
		ArgsUsage: "<tag>",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip confirmation"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			tag := cmd.Args().Get(0)
			if tag == "" {
				return usageError("missing thread tag")
			}
			if !cmd.Bool("yes") {
				// Fail before prompting when the thread does not exist.
				if _, err := e.svc.Show(tag, threadservice.ShowOptions{}); err != nil {
					return err
				}
				r := bufio.NewReader(a.Stdin)
				if !a.confirm(r, fmt.Sprintf("Delete thread '%s'? This cannot be undone. (y/N): ", tag), "y") {
					a.println("Aborted.")
					return nil
				}
			}
			if _, err := e.svc.Delete(ctx, tag); err != nil {
				return err
			}
			a.ok("Deleted thread '%s'.", tag)
			return nil
		}),
	}
}

func (a *App) clearCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "clear",
		Usage: "Delete ALL threads from the index (dangerous)",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "yes", Usage: "Skip confirmation prompts"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			list, err := e.svc.List(threadservice.ListOptions{SinceDays: -1})
			if err != nil {
				return err
			}
			if len(list.Threads) == 0 {
				a.println("Index is already empty.")
				return nil
			}
			if !cmd.Bool("yes") {
				r := bufio.NewReader(a.Stdin)
				if !a.confirm(r, "Are you sure you want to delete ALL threads? This cannot be undone. (y/N): ", "y") ||
					!a.confirm(r, "Type 'clear' to confirm: ", "clear") {
					a.println("Aborted.")
					return nil
				}
			}
			n, err := e.svc.Clear(ctx)
			if err != nil {
				return err
			}
			a.ok("All threads deleted (%d).", n)
			return nil
		}),
	}
}
