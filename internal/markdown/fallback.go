package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// fallbackRenderer is the dependency-free markdown converter used when the
// primary parser fails. It covers common-case GitHub-flavored syntax only:
// fenced and inline code, headers up to four levels, bold, italic, links,
// list items, and blank-line-delimited paragraphs.
//
// Code spans are stashed behind placeholders and the remaining text is
// HTML-escaped before any tag is generated, so no literal segment can reach
// the output unescaped.
type fallbackRenderer struct{}

var (
	fencedRe = regexp.MustCompile("(?s)```\n?(.*?)```")
	inlineRe = regexp.MustCompile("`([^`\n]+)`")

	h4Re = regexp.MustCompile(`(?m)^#### (.+)$`)
	h3Re = regexp.MustCompile(`(?m)^### (.+)$`)
	h2Re = regexp.MustCompile(`(?m)^## (.+)$`)
	h1Re = regexp.MustCompile(`(?m)^# (.+)$`)

	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*\n]+)\*`)
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

	ulItemRe = regexp.MustCompile(`(?m)^[*-] (.+)$`)
	olItemRe = regexp.MustCompile(`(?m)^\d+\. (.+)$`)
	ulRunRe  = regexp.MustCompile(`(?:\x02<li class="copilot-list-item">[^\n]*</li>\n?)+`)
	olRunRe  = regexp.MustCompile(`(?:\x01<li class="copilot-list-item">[^\n]*</li>\n?)+`)

	blockSplitRe = regexp.MustCompile(`\n{2,}`)
)

func (fallbackRenderer) Render(src string) (string, error) {
	var stash []string
	put := func(rendered string) string {
		stash = append(stash, rendered)
		return fmt.Sprintf("\x00%d\x00", len(stash)-1)
	}

	out := fencedRe.ReplaceAllStringFunc(src, func(m string) string {
		code := fencedRe.FindStringSubmatch(m)[1]
		return put(`<pre class="copilot-code-block"><code>` + html.EscapeString(code) + `</code></pre>`)
	})
	out = inlineRe.ReplaceAllStringFunc(out, func(m string) string {
		code := inlineRe.FindStringSubmatch(m)[1]
		return put(`<code class="copilot-inline-code">` + html.EscapeString(code) + `</code>`)
	})

	// Everything outside code is escaped up front; the rewrites below only
	// ever insert the formatter's own tags.
	out = html.EscapeString(out)

	out = h4Re.ReplaceAllString(out, `<h4 class="copilot-h4">$1</h4>`)
	out = h3Re.ReplaceAllString(out, `<h3 class="copilot-h3">$1</h3>`)
	out = h2Re.ReplaceAllString(out, `<h2 class="copilot-h2">$1</h2>`)
	out = h1Re.ReplaceAllString(out, `<h1 class="copilot-h1">$1</h1>`)

	out = boldRe.ReplaceAllString(out, `<strong>$1</strong>`)
	out = italicRe.ReplaceAllString(out, `<em>$1</em>`)
	out = linkRe.ReplaceAllString(out,
		`<a href="$2" target="_blank" rel="noopener noreferrer" class="copilot-link">$1</a>`)

	// Ordered and unordered items get distinct run markers so each run is
	// wrapped in its own list element kind.
	out = olItemRe.ReplaceAllString(out, "\x01<li class=\"copilot-list-item\">$1</li>")
	out = ulItemRe.ReplaceAllString(out, "\x02<li class=\"copilot-list-item\">$1</li>")
	out = olRunRe.ReplaceAllStringFunc(out, func(run string) string {
		return wrapListRun(run, "\x01", "ol")
	})
	out = ulRunRe.ReplaceAllStringFunc(out, func(run string) string {
		return wrapListRun(run, "\x02", "ul")
	})

	out = paragraphs(out)

	for i, rendered := range stash {
		out = strings.Replace(out, fmt.Sprintf("\x00%d\x00", i), rendered, 1)
	}
	return out, nil
}

func wrapListRun(run, marker, tag string) string {
	run = strings.ReplaceAll(run, marker, "")
	return "<" + tag + ` class="copilot-list">` + strings.TrimSuffix(run, "\n") + "</" + tag + ">\n"
}

// paragraphs wraps blank-line-delimited plain blocks in <p>; blocks that
// already start with a generated element or a code placeholder pass through.
func paragraphs(src string) string {
	blocks := blockSplitRe.Split(src, -1)
	var b strings.Builder
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if strings.HasPrefix(block, "<h") ||
			strings.HasPrefix(block, "<ul") ||
			strings.HasPrefix(block, "<ol") ||
			strings.HasPrefix(block, "<pre") ||
			strings.HasPrefix(block, "<li") ||
			strings.HasPrefix(block, "\x00") {
			b.WriteString(block)
			continue
		}
		b.WriteString(`<p class="copilot-paragraph">`)
		b.WriteString(strings.ReplaceAll(block, "\n", " "))
		b.WriteString(`</p>`)
	}
	return b.String()
}
