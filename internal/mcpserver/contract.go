package mcpserver

// LinkFormatContract describes the wiki-link syntax and resolution rules
// that LLM consumers should follow when reading or writing notes.
const LinkFormatContract = `# Gebo Link Format Contract

Every note stored in Gebo is plain Markdown. Cross-references between notes
use wiki-link syntax, which the index parses and resolves.

## Syntax

` + "```" + `markdown
[[target]]                 Link to another note by name.
[[target|display text]]    Link with display text that differs from the target.
[[target#section]]         Link to a section heading inside the target.
[[target#section|text]]    Section link with display text.
![[target]]                Embed (transclusion) of the target note.
[[folder/target]]          Path-qualified link; resolved against vault paths.
` + "```" + `

## Rules

1. **Targets omit the ` + "`" + `.md` + "`" + ` extension.** ` + "`" + `[[notes/idea]]` + "`" + ` refers to the
   file ` + "`" + `notes/idea.md` + "`" + `.
2. **Bare names resolve by basename.** ` + "`" + `[[idea]]` + "`" + ` matches any note whose
   filename stem is ` + "`" + `idea` + "`" + `, wherever it lives. Exact case wins; a
   case-insensitive match is the fallback.
3. **Ambiguity is tie-broken deterministically.** When several notes share a
   basename, a note in the same folder as the referrer wins, then the most
   recently modified, then the lexicographically smallest path.
4. **Unresolved links are allowed.** A link to a note that does not exist yet
   becomes a placeholder; creating the note later resolves it automatically.
5. **Links inside code are ignored.** Text in fenced code blocks or inline
   backtick spans is never parsed as a link.
6. **Renames rewrite link text.** Renaming a note updates the literal
   ` + "`" + `[[...]]` + "`" + ` text in every referencing note, preserving ` + "`" + `#section` + "`" + `
   and ` + "`" + `|display` + "`" + ` parts.
7. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
8. **Encoding** is UTF-8 with a trailing newline.
`
