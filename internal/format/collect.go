package format

import (
	"sort"
	"strings"
)

// collector keeps the first entry seen for each in-range index.
type collector struct {
	size    int
	seen    map[int]bool
	entries []TranslatedEntry
}

func newCollector(size int) *collector {
	return &collector{size: size, seen: make(map[int]bool, size)}
}

func (c *collector) add(e TranslatedEntry) {
	if e.Index < 0 || e.Index >= c.size || c.seen[e.Index] {
		return
	}
	e.Text = strings.TrimSpace(e.Text)
	if e.Text == "" {
		return
	}
	c.seen[e.Index] = true
	c.entries = append(c.entries, e)
}

func (c *collector) result() []TranslatedEntry {
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].Index < c.entries[j].Index })
	return c.entries
}

// responseLines normalizes line endings and drops markdown code fences that
// chat backends like to wrap output in.
func responseLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	ret := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		ret = append(ret, line)
	}
	return ret
}

func isContextLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), contextQuote)
}
