package index

import (
	"fmt"
	"strings"

	"github.com/starford/gebo/internal/models"
)

// rewriteReferences updates the literal link text in one referencing note
// after a rename, then re-parses and re-resolves that note. The write is
// skipped when no text actually changes (bare-basename references survive
// a same-basename move verbatim).
func (s *Store) rewriteReferences(source models.NoteID, edges []models.ResolvedLink, newID models.NoteID) error {
	sh, ok := s.st.lookup(source)
	if !ok {
		return fmt.Errorf("index: unknown referencing note %s", source)
	}
	rec := s.st.records[sh]

	data, err := s.store.Read(rec.Path)
	if err != nil {
		return err
	}

	rewritten, changed := rewriteContentLinks(data, edges, newID)
	if changed {
		if err := s.store.Write(rec.Path, rewritten); err != nil {
			return err
		}
	}
	s.editLocked(sh, rewritten)
	return nil
}

// rewriteContentLinks retargets the given edges' literal texts at newID
// inside content. Reports whether any text actually changed.
func rewriteContentLinks(content []byte, edges []models.ResolvedLink, newID models.NoteID) ([]byte, bool) {
	lines := strings.Split(string(content), "\n")
	changed := false
	for _, e := range edges {
		newRaw := rewriteRawText(e.RawText, newID)
		if newRaw == e.RawText || e.Line < 1 || e.Line > len(lines) {
			continue
		}
		updated := replaceOutsideInlineCode(lines[e.Line-1], e.RawText, newRaw)
		if updated != lines[e.Line-1] {
			lines[e.Line-1] = updated
			changed = true
		}
	}
	return []byte(strings.Join(lines, "\n")), changed
}

// rewriteRawText retargets one literal reference at newID, preserving the
// embed marker, #section, and |label. A reference written as a path keeps
// the path form; a bare basename stays a bare basename.
func rewriteRawText(raw string, newID models.NoteID) string {
	text := raw
	prefix := ""
	if strings.HasPrefix(text, "!") {
		prefix = "!"
		text = text[1:]
	}
	if !strings.HasPrefix(text, "[[") || !strings.HasSuffix(text, "]]") {
		return raw
	}
	inner := text[2 : len(text)-2]

	var label string
	if i := strings.Index(inner, "|"); i >= 0 {
		label = inner[i:] // includes the pipe
		inner = inner[:i]
	}
	var section string
	if i := strings.Index(inner, "#"); i >= 0 {
		section = inner[i:] // includes the hash
		inner = inner[:i]
	}

	name := newID.Basename()
	if strings.Contains(strings.TrimSpace(inner), "/") {
		name = string(newID)
	}
	return prefix + "[[" + name + section + label + "]]"
}

// replaceOutsideInlineCode replaces every occurrence of old in line with
// repl, leaving backtick-delimited code spans untouched.
func replaceOutsideInlineCode(line, old, repl string) string {
	if old == "" {
		return line
	}
	var b strings.Builder
	i := 0
	for i < len(line) {
		if line[i] == '`' {
			end := strings.IndexByte(line[i+1:], '`')
			if end < 0 {
				b.WriteString(line[i:])
				return b.String()
			}
			span := line[i : i+end+2]
			b.WriteString(span)
			i += len(span)
			continue
		}
		if strings.HasPrefix(line[i:], old) {
			b.WriteString(repl)
			i += len(old)
			continue
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String()
}
