package mcpserver

// FileFormatContract describes the Markdown file format LLM clients should
// follow when creating or updating vault files.
const FileFormatContract = `# Vault File Format

Vault files are UTF-8 Markdown. Frontmatter is optional but, when present,
must be valid YAML.

## Structure

` + "```" + `markdown
---
title: Human-readable title      # OPTIONAL, falls back to the first heading or file name
aliases: [Other name]            # OPTIONAL, extra names wikilinks may use
tags: [project, meeting-notes]   # OPTIONAL, list or single string
---

# Heading

Body text with [[wikilinks]], [[target|display text]], [[target#Heading]],
![[embedded-file]] and [markdown](links.md).
` + "```" + `

## Rules

1. The ` + "`---`" + ` fence must be the first line of the file when frontmatter is used.
2. Wikilink targets are file stems, aliases or vault-relative paths without ` + "`.md`" + `.
   Resolution is case-insensitive; prefer the full path when two files share a name.
3. Inline ` + "`#tags`" + ` in the body are merged with frontmatter tags.
4. Paths use forward slashes and stay inside the vault. ` + "`..`" + ` segments are rejected.
5. Excluded directories (` + "`.obsidian`, `.git`, `.trash`" + `) are never read or written.

## Editing safely

- Read the file first and pass its hash as ` + "`expected_hash`" + ` to
  ` + "`write_file`" + ` or ` + "`edit_file`" + `; a changed file fails with a concurrency error.
- Use ` + "`edit_file`" + ` with ` + "`dry_run`" + ` to preview a unified diff.
- Use ` + "`move_file`" + ` with ` + "`update_references`" + ` instead of delete plus write,
  so links elsewhere follow the file.
- Use ` + "`batch_execute`" + ` for multi-file changes; it applies everything or nothing.
`
