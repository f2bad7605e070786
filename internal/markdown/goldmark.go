package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// goldmarkRenderer renders GitHub-flavored markdown with goldmark and
// rewrites the output to carry the widget's class hooks. Raw HTML in the
// source is omitted by goldmark's default renderer, so literal text cannot
// smuggle tags through this path.
type goldmarkRenderer struct {
	md goldmark.Markdown
}

func newGoldmarkRenderer() *goldmarkRenderer {
	return &goldmarkRenderer{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// classHooks tags each element kind with its presentation class. Code is
// rewritten in two passes: the first pass cannot tell inline code from the
// opening of a fenced block, so the second fixes up <pre><code> pairs.
var classHooks = strings.NewReplacer(
	"<p>", `<p class="copilot-paragraph">`,
	"<h1>", `<h1 class="copilot-h1">`,
	"<h2>", `<h2 class="copilot-h2">`,
	"<h3>", `<h3 class="copilot-h3">`,
	"<h4>", `<h4 class="copilot-h4">`,
	"<ul>", `<ul class="copilot-list">`,
	"<ol>", `<ol class="copilot-list">`,
	"<li>", `<li class="copilot-list-item">`,
	"<code>", `<code class="copilot-inline-code">`,
	"<blockquote>", `<blockquote class="copilot-blockquote">`,
	"<hr>", `<hr class="copilot-hr">`,
	"<hr />", `<hr class="copilot-hr" />`,
	"<a ", `<a class="copilot-link" target="_blank" rel="noopener noreferrer" `,
)

var codeBlockHooks = strings.NewReplacer(
	`<pre><code class="copilot-inline-code">`, `<pre class="copilot-code-block"><code>`,
	`<pre><code class="language-`, `<pre class="copilot-code-block"><code class="language-`,
)

func (r *goldmarkRenderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	html := classHooks.Replace(buf.String())
	html = codeBlockHooks.Replace(html)
	return html, nil
}
