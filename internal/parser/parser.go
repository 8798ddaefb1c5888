// Package parser extracts wiki references (links and embeds) from note text.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/gebo/internal/models"
)

// refRe matches one reference occurrence. The optional leading "!" makes
// embeds win over plain links at the same position (longest match first).
// The inner character class forbids brackets, so unterminated or nested
// forms simply never match and stay literal text.
var refRe = regexp.MustCompile(`(!)?\[\[([^\[\]]+)\]\]`)

// contextWindow is the number of characters kept on each side of a match
// in the context snippet.
const contextWindow = 40

// Scan extracts every reference from text, in document order. It is pure:
// the same text always yields the same list, independent of corpus state.
// References inside fenced code blocks and inline code spans are skipped.
func Scan(source models.NoteID, text string) []models.RawReference {
	var refs []models.RawReference

	inFence := false
	for lineIdx, line := range strings.Split(text, "\n") {
		if isFenceMarker(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		// Mask inline code spans with spaces so column offsets survive.
		scannable := maskInlineCode(line)

		for _, m := range refRe.FindAllStringSubmatchIndex(scannable, -1) {
			raw := line[m[0]:m[1]]
			kind := models.KindLink
			if m[2] >= 0 {
				kind = models.KindEmbed
			}
			inner := line[m[4]:m[5]]

			target, label, ok := SplitTarget(inner)
			if !ok {
				continue
			}

			refs = append(refs, models.RawReference{
				Source:  source,
				Kind:    kind,
				Target:  target,
				Label:   label,
				Line:    lineIdx + 1,
				Context: snippet(line, m[0], m[1]),
				RawText: raw,
			})
		}
	}

	return refs
}

// SplitTarget decomposes the inner text of a reference into
// name[#section][|label]. It returns ok=false when the name is empty,
// in which case no reference is emitted.
func SplitTarget(inner string) (models.TargetSpec, string, bool) {
	var label string
	if i := strings.Index(inner, "|"); i >= 0 {
		label = strings.TrimSpace(inner[i+1:])
		inner = inner[:i]
	}

	var section string
	if i := strings.Index(inner, "#"); i >= 0 {
		section = strings.TrimSpace(inner[i+1:])
		inner = inner[:i]
	}

	name := strings.TrimSpace(inner)
	if name == "" {
		return models.TargetSpec{}, "", false
	}

	spec := models.TargetSpec{Name: name, Section: section}
	if strings.Contains(name, "/") {
		// Written as a vault-relative path: keep the full hint and use the
		// last element as the display name.
		spec.Path = strings.Trim(name, "/")
		if spec.Path == "" {
			return models.TargetSpec{}, "", false
		}
		parts := strings.Split(spec.Path, "/")
		spec.Name = parts[len(parts)-1]
	}
	return spec, label, true
}

// isFenceMarker reports whether line opens or closes a fenced code block.
func isFenceMarker(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// maskInlineCode replaces backtick-delimited spans with spaces of equal
// length. An unpaired backtick masks the rest of the line.
func maskInlineCode(line string) string {
	if !strings.Contains(line, "`") {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	i := 0
	for i < len(line) {
		if line[i] != '`' {
			b.WriteByte(line[i])
			i++
			continue
		}
		end := strings.IndexByte(line[i+1:], '`')
		if end < 0 {
			b.WriteString(strings.Repeat(" ", len(line)-i))
			break
		}
		span := end + 2 // both backticks plus the span body
		b.WriteString(strings.Repeat(" ", span))
		i += span
	}
	return b.String()
}

// snippet returns a bounded window of line around [start, end). The window
// edges are widened to rune boundaries so multibyte text never gets cut
// mid-sequence.
func snippet(line string, start, end int) string {
	from := start - contextWindow
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(line[from]) {
		from--
	}
	to := end + contextWindow
	if to > len(line) {
		to = len(line)
	}
	for to < len(line) && !utf8.RuneStart(line[to]) {
		to++
	}
	return strings.TrimSpace(line[from:to])
}
