package discord

import (
	"fmt"
	"regexp"
	"strings"
)

var markdownSpecials = regexp.MustCompile("([*_`~|>\\\\])")

// Escape makes caller-provided text render literally in Discord.
func Escape(text string) string {
	return markdownSpecials.ReplaceAllString(text, `\$1`)
}

// FormatBold wraps text in bold markers.
func FormatBold(text string) string {
	return "**" + text + "**"
}

// FormatQuote prefixes every non-blank line with a quote marker.
func FormatQuote(text string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		if strings.TrimSpace(line) != "" {
			b.WriteString("> " + line)
		}
	}
	return b.String()
}

// FormatList renders ticket lines as a bulleted or numbered list.
func FormatList(items []string, ordered bool) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		if ordered {
			fmt.Fprintf(&b, "%d. %s", i+1, item)
		} else {
			b.WriteString("• " + item)
		}
	}
	return b.String()
}
