// Package markdown converts raw assistant text into sanitized HTML
// fragments carrying the widget's presentation class hooks.
//
// A goldmark-based renderer is the primary parser; a dependency-free
// regex renderer stands in when it fails. Both paths end in the same
// sanitizer, so only the formatter's own generated tags survive.
package markdown

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Renderer converts normalized markdown into an HTML fragment.
type Renderer interface {
	Render(src string) (string, error)
}

// Formatter is the markdown-to-HTML pipeline. The renderer pair is fixed at
// construction rather than re-detected per call.
type Formatter struct {
	primary  Renderer
	fallback Renderer
	policy   *bluemonday.Policy
}

// New creates a formatter with the goldmark renderer as primary and the
// built-in regex renderer as fallback.
func New() *Formatter {
	return &Formatter{
		primary:  newGoldmarkRenderer(),
		fallback: fallbackRenderer{},
		policy:   newPolicy(),
	}
}

// Format converts raw assistant text into a sanitized HTML fragment.
// Empty or whitespace-only input yields an empty string; callers render
// their own placeholder for that case.
func (f *Formatter) Format(raw string) string {
	src := normalize(raw)
	if src == "" {
		return ""
	}

	html, err := f.primary.Render(src)
	if err != nil {
		html, err = f.fallback.Render(src)
		if err != nil {
			return ""
		}
	}
	return f.policy.Sanitize(html)
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements(
		"p", "h1", "h2", "h3", "h4", "ul", "ol", "li",
		"code", "pre", "blockquote", "hr", "a")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").OnElements("a")
	p.RequireNoFollowOnLinks(false)
	p.AllowRelativeURLs(true)
	return p
}

// unescaper undoes the over-escaping some backends apply to markdown before
// it reaches the widget.
var unescaper = strings.NewReplacer(
	`\n`, "\n",
	`\#`, "#",
	`\*`, "*",
	"\\`", "`",
	`\_`, "_",
	`\[`, "[",
	`\]`, "]",
)

var headerLine = regexp.MustCompile(`^#{1,6}\s`)

// normalize unescapes, trims, and pads header lines with blank lines so
// line-oriented parsers recognize them.
func normalize(raw string) string {
	src := strings.TrimSpace(unescaper.Replace(raw))
	if src == "" {
		return ""
	}

	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !headerLine.MatchString(trimmed) {
			out = append(out, line)
			continue
		}

		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)
		if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if next != "" && !headerLine.MatchString(next) {
				out = append(out, "")
			}
		}
	}
	return strings.Join(out, "\n")
}
