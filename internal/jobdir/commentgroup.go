package jobdir

import (
	"strings"

	"github.com/tidwall/sjson"
)

// commentGroup accumulates consecutive `#`-prefixed TAP comment lines that
// share the same leading-whitespace prefix, coalescing them into a single
// diagnostic event on flush.
type commentGroup struct {
	prefix string
	tag    StreamTag
	lines  []string
}

func newCommentGroup(prefix string, tag StreamTag) *commentGroup {
	return &commentGroup{prefix: prefix, tag: tag}
}

func (g *commentGroup) add(line string) {
	g.lines = append(g.lines, line)
}

// raw builds the group's facet_data: {"diag": {"details": "...", "tag":
// "...", "debug": bool}}, with details holding the accumulated lines
// joined by newlines.
func (g *commentGroup) raw(debug bool) []byte {
	raw := []byte("{}")
	raw, _ = sjson.SetBytes(raw, "diag.details", strings.Join(g.lines, "\n"))
	raw, _ = sjson.SetBytes(raw, "diag.tag", string(g.tag))
	raw, _ = sjson.SetBytes(raw, "diag.debug", debug)
	return raw
}

// commentPrefix reports whether line is a TAP comment line and, if so, its
// leading-whitespace indentation.
func commentPrefix(line string) (prefix string, isComment bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	return line[:len(line)-len(trimmed)], true
}
