package mcpserver

// GuideURI identifies the usage guide resource.
const GuideURI = "threadlinking://guide"

// Guide explains how assistants should organize context.
const Guide = `# threadlinking Guide

threadlinking stores the reasons behind files: conversation snippets grouped
into named threads, and links from threads to the files they produced.

## Threads

- Name threads after projects or long-lived topics (` + "`" + `billing-service` + "`" + `), not tasks.
- Tags are case-sensitive, at most 100 characters, and may not contain ` + "`" + `< > " ' &` + "`" + `.
- ` + "`" + `threadlinking_snippet` + "`" + ` creates the thread on first use, so a separate
  ` + "`" + `threadlinking_create` + "`" + ` is only needed for a custom summary or chat URL.

## Snippets

- Save the decision and its reason, not the whole conversation (max 2000 characters).
- Add comma separated tags such as ` + "`" + `decision,auth` + "`" + ` to filter later with
  ` + "`" + `threadlinking_show` + "`" + ` and ` + "`" + `filter_tag` + "`" + `.

## Files

- After creating or substantially changing a file, link it with ` + "`" + `threadlinking_attach` + "`" + `.
- Paths are resolved to absolute paths; ` + "`" + `~` + "`" + ` expands to the home directory.
- Files edited by hooks but not yet linked show up as pending in ` + "`" + `threadlinking_list` + "`" + `.
- Before changing an unfamiliar file, call ` + "`" + `threadlinking_explain` + "`" + ` to read its history.

## Search

- ` + "`" + `threadlinking_search` + "`" + ` matches keywords in tags, summaries and snippets.
- ` + "`" + `threadlinking_semantic_search` + "`" + ` ranks by meaning once the index is built
  with ` + "`" + `threadlinking reindex` + "`" + `.
`
