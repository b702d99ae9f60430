package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	urfave "github.com/urfave/cli/v3"

	"github.com/starford/threadlinking/internal/threadservice"
	"github.com/starford/threadlinking/internal/validate"
)

// maxPendingDisplay bounds the pending files printed by list.
const maxPendingDisplay = 8

// auditSampleSize bounds the broken paths printed by audit.
const auditSampleSize = 5

const defaultSemanticLimit = 5

func (a *App) showCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "show",
		Usage:     "Show thread details",
		ArgsUsage: "<tag>",
		Flags: []urfave.Flag{
			&urfave.StringFlag{Name: "tag", Usage: "Only show snippets carrying this tag"},
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(_ context.Context, cmd *urfave.Command, e *env) error {
			tag := cmd.Args().First()
			if tag == "" {
				return usageError("missing thread tag")
			}
			filter := strings.ToLower(strings.TrimSpace(cmd.String("tag")))
			res, err := e.svc.Show(tag, threadservice.ShowOptions{FilterTag: filter})
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res.Thread)
			}

			t := res.Thread
			a.println()
			a.printf("  %s\n", a.tag(res.Tag))
			a.printf("  %s\n", strings.Repeat("─", len([]rune(res.Tag))))
			summary := t.Summary
			if summary == "" {
				summary = "(no summary)"
			}
			a.printf("  %s\n", summary)
			if t.ChatURL != "" {
				a.println()
				a.printf("  URL: %s\n", t.ChatURL)
			}
			if !t.DateCreated.IsZero() {
				a.printf("  Created: %s\n", formatDate(t.DateCreated))
			}
			if !t.DateModified.IsZero() && !t.DateModified.Equal(t.DateCreated) {
				a.printf("  Modified: %s\n", formatDate(t.DateModified))
			}

			switch {
			case len(t.Snippets) > 0:
				note := ""
				if filter != "" {
					note = " (filtered by: " + filter + ")"
				}
				a.println()
				a.printf("  Snippets (%d)%s:\n", len(t.Snippets), note)
				for i, sn := range t.Snippets {
					tags := ""
					if len(sn.Tags) > 0 {
						tags = " [" + strings.Join(sn.Tags, ", ") + "]"
					}
					a.println()
					a.printf("  [%d] %s @ %s%s\n", i+1, sn.Source, formatDate(sn.Timestamp), tags)
					a.printf("      %s\n", validate.Truncate(firstLine(sn.Content), 70))
					if sn.URL != "" {
						a.printf("      %s\n", a.muted("("+sn.URL+")"))
					}
				}
			case filter != "":
				a.println()
				a.printf("  No snippets with tag: %s\n", filter)
			}

			if len(t.LinkedFiles) > 0 {
				a.println()
				a.printf("  Linked files (%d):\n", len(t.LinkedFiles))
				for _, f := range t.LinkedFiles {
					a.printf("    - %s\n", f)
				}
			}
			a.println()
			return nil
		}),
	}
}

func (a *App) listCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "list",
		Usage: "List threads and untracked files",
		Flags: []urfave.Flag{
			&urfave.StringFlag{Name: "prefix", Usage: "Only threads whose tag starts with this prefix"},
			&urfave.IntFlag{Name: "since", Usage: "Only threads active in the last N days"},
			&urfave.BoolFlag{Name: "clear-pending", Usage: "Clear the pending files list"},
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			if cmd.Bool("clear-pending") {
				n, err := e.svc.ClearPending(ctx)
				if err != nil {
					return err
				}
				a.ok("Cleared %d pending %s.", n, plural(n, "file", "files"))
				return nil
			}

			opts := threadservice.ListOptions{
				Prefix:         cmd.String("prefix"),
				SinceDays:      -1,
				IncludePending: true,
			}
			if cmd.IsSet("since") {
				opts.SinceDays = int(cmd.Int("since"))
			}
			res, err := e.svc.List(opts)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res)
			}

			if len(res.Threads) == 0 {
				a.println(`No threads yet. Create one with: threadlinking snippet <name> "context"`)
			}
			for _, t := range res.Threads {
				a.printf("%s  -  %s\n", a.tag(t.Tag), validate.Truncate(t.Summary, 60))
			}

			if len(res.Pending) == 0 {
				return nil
			}
			a.println()
			a.printf("Untracked files (%d):\n", len(res.Pending))
			for i, f := range res.Pending {
				if i == maxPendingDisplay {
					a.printf("  ... and %d more\n", len(res.Pending)-maxPendingDisplay)
					break
				}
				count := ""
				if f.Count > 1 {
					count = fmt.Sprintf(" (modified %dx)", f.Count)
				}
				a.printf("  %s%s\n", f.Basename, count)
				a.printf("    %s\n", a.muted(f.Path))
			}
			a.println()
			a.println(a.muted(`Tip: threadlinking snippet <thread> "context" && threadlinking attach <thread> <file>`))
			return nil
		}),
	}
}

func (a *App) searchCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "search",
		Usage:     "Search threads by keyword",
		ArgsUsage: "<query>",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(_ context.Context, cmd *urfave.Command, e *env) error {
			res, err := e.svc.Search(strings.Join(cmd.Args().Slice(), " "))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res)
			}
			if len(res.Results) == 0 {
				a.printf("No threads match '%s'.\n", res.Query)
				return nil
			}
			a.printf("Found %d %s matching '%s':\n\n", len(res.Results), plural(len(res.Results), "thread", "threads"), res.Query)
			for _, hit := range res.Results {
				a.printf("  %s  %s\n", a.tag(hit.Tag), validate.Truncate(hit.Thread.Summary, 60))
				a.printf("    %s\n", a.muted("matched in: "+strings.Join(hit.MatchedIn, ", ")))
			}
			return nil
		}),
	}
}

func (a *App) auditCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "audit",
		Usage: "Audit the thread index for broken links, orphans and stale threads",
		Flags: []urfave.Flag{
			&urfave.IntFlag{Name: "stale", Value: threadservice.DefaultStaleDays, Usage: "Days without activity before a thread is stale"},
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(_ context.Context, cmd *urfave.Command, e *env) error {
			rep, err := e.svc.Audit(threadservice.AuditOptions{StaleDays: int(cmd.Int("stale"))})
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(rep)
			}
			a.printf("Broken paths: %d\n", len(rep.Broken))
			for i, b := range rep.Broken {
				if i == auditSampleSize {
					a.println("  ...")
					break
				}
				a.printf("  x %s: %s\n", b.Tag, b.Path)
			}
			a.printf("Orphan threads: %d\n", len(rep.Orphans))
			a.printf("Stale threads (> %dd): %d\n", rep.StaleDays, len(rep.Stale))
			a.printf("Duplicates: %d\n", len(rep.Duplicates))
			files := make([]string, 0, len(rep.Duplicates))
			for f := range rep.Duplicates {
				files = append(files, f)
			}
			sort.Strings(files)
			for _, f := range files {
				a.printf("  %s: %s\n", f, strings.Join(rep.Duplicates[f], ", "))
			}
			return nil
		}),
	}
}

func (a *App) statusCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "status",
		Usage: "Show installation status",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			st, err := e.svc.Status(ctx)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(st)
			}
			a.printf("threadlinking %s\n\n", st.Version)
			a.printf("  Home:     %s\n", st.Home)
			a.printf("  Threads:  %d\n", st.Threads)
			a.printf("  Pending:  %d\n", st.Pending)
			a.println()
			sem := st.Semantic
			switch {
			case !sem.Enabled:
				a.println("  Semantic search: disabled")
			case !sem.Built:
				a.printf("  Semantic search: %s (index not built; run 'threadlinking reindex')\n", sem.Provider)
			default:
				a.printf("  Semantic search: %s\n", sem.Provider)
				if sem.Stats != nil {
					a.printf("    Items: %d (%d summaries, %d snippets) across %d threads\n",
						sem.Stats.TotalItems, sem.Stats.Summaries, sem.Stats.Snippets, sem.Stats.Threads)
				}
				if sem.Stale {
					a.println("    " + a.paint(colorWarning).Sprint(threadservice.StaleWarning))
				}
			}
			return nil
		}),
	}
}

func (a *App) analyticsCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "analytics",
		Usage: "Show usage statistics",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(_ context.Context, cmd *urfave.Command, e *env) error {
			an, err := e.svc.Analytics()
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(an)
			}
			a.printf("Threads:        %d\n", an.TotalThreads)
			a.printf("Snippets:       %d (avg %.1f per thread)\n", an.TotalSnippets, an.AvgSnippetsPerThread)
			a.printf("Linked files:   %d (avg %.1f per thread)\n", an.TotalLinkedFiles, an.AvgFilesPerThread)
			a.printf("Created (7d):   %d\n", an.CreatedLast7Days)
			a.printf("Created (30d):  %d\n", an.CreatedLast30Days)
			if an.MostActive != nil {
				a.printf("Most active:    %s (%d snippets)\n", a.tag(an.MostActive.Tag), an.MostActive.SnippetCount)
			}
			if an.Oldest != nil {
				a.printf("Oldest:         %s (%s)\n", an.Oldest.Tag, formatDate(an.Oldest.Date))
			}
			if an.Newest != nil {
				a.printf("Newest:         %s (%s)\n", an.Newest.Tag, formatDate(an.Newest.Date))
			}
			if len(an.Sources) > 0 {
				sources := make([]string, 0, len(an.Sources))
				for src, n := range an.Sources {
					sources = append(sources, fmt.Sprintf("%s=%d", src, n))
				}
				sort.Strings(sources)
				a.printf("Sources:        %s\n", strings.Join(sources, ", "))
			}
			if len(an.TopTags) > 0 {
				tags := make([]string, len(an.TopTags))
				for i, tc := range an.TopTags {
					tags[i] = fmt.Sprintf("%s (%d)", tc.Tag, tc.Count)
				}
				a.printf("Top tags:       %s\n", strings.Join(tags, ", "))
			}
			return nil
		}),
	}
}

func (a *App) semanticSearchCommand() *urfave.Command {
	return &urfave.Command{
		Name:      "semantic-search",
		Usage:     "Search threads by meaning",
		ArgsUsage: "<query>",
		Flags: []urfave.Flag{
			&urfave.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: defaultSemanticLimit, Usage: "Maximum threads to return"},
			&urfave.BoolFlag{Name: "json", Usage: "Output as JSON"},
		},
		Action: a.with(logText, func(ctx context.Context, cmd *urfave.Command, e *env) error {
			res, err := e.svc.SemanticSearch(ctx, strings.Join(cmd.Args().Slice(), " "), int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return a.printJSON(res)
			}
			if res.StaleWarning != "" {
				a.warn("Note: %s", res.StaleWarning)
			}
			if len(res.Results) == 0 {
				a.printf("No threads found for '%s'.\n", res.Query)
				return nil
			}
			for _, hit := range res.Results {
				a.printf("  %s  %s  %s\n", a.muted(fmt.Sprintf("%.3f", hit.Score)), a.tag(hit.Tag), validate.Truncate(hit.Thread.Summary, 60))
				for _, i := range hit.MatchedSnippets {
					if i >= 0 && i < len(hit.Thread.Snippets) {
						a.printf("      [%d] %s\n", i+1, validate.Truncate(firstLine(hit.Thread.Snippets[i].Content), 70))
					}
				}
			}
			return nil
		}),
	}
}

func (a *App) reindexCommand() *urfave.Command {
	return &urfave.Command{
		Name:  "reindex",
		Usage: "Rebuild the semantic search index",
		Action: a.with(logText, func(ctx context.Context, _ *urfave.Command, e *env) error {
			res, err := e.svc.Reindex(ctx, func(msg string) {
				fmt.Fprintln(a.Stderr, a.muted(msg))
			})
			if err != nil {
				return err
			}
			a.ok("Indexed %d items from %d threads.", res.Items, res.Threads)
			return nil
		}),
	}
}
