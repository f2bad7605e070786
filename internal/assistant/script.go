// Package assistant is a local stand-in for the production assistant
// backend. It answers from a keyword script over both wire protocols the
// widget speaks, streaming with a typing cadence on the socket path.
package assistant

import (
	"fmt"
	"strings"
)

// Answer is one scripted reply.
type Answer struct {
	Markdown string
	Sources  []string
}

type scriptEntry struct {
	keywords []string
	answer   Answer
}

// Script matches questions to canned answers by keyword.
type Script struct {
	entries []scriptEntry
}

// DefaultScript covers enough topics to exercise the widget's rendering
// paths: headers, lists, code, links, and citations.
func DefaultScript() *Script {
	return &Script{entries: []scriptEntry{
		{
			keywords: []string{"plan", "pricing", "price", "cost"},
			answer: Answer{
				Markdown: "## Plans\n\nWe offer three plans:\n\n- **Starter** for individuals\n- **Team** for up to 20 seats\n- **Enterprise** with custom terms\n\nSee the [pricing page](https://example.com/pricing) for details.",
				Sources:  []string{"docs/pricing.md", "docs/plans/overview.md"},
			},
		},
		{
			keywords: []string{"hour", "open", "support", "contact"},
			answer: Answer{
				Markdown: "Support is available **Monday to Friday, 9:00 to 17:00 CET**.\n\nOutside those hours, email `support@example.com` and we reply the next business day.",
				Sources:  []string{"docs/support.md"},
			},
		},
		{
			keywords: []string{"install", "setup", "start"},
			answer: Answer{
				Markdown: "## Getting started\n\n1. Create an account\n2. Install the CLI:\n\n```\ncurl -fsSL https://example.com/install.sh | sh\n```\n\n3. Run `example init` in your project",
				Sources:  []string{"docs/getting-started.md"},
			},
		},
		{
			keywords: []string{"error", "broken", "fail", "bug"},
			answer: Answer{
				Markdown: "Sorry to hear that. Check the [status page](https://status.example.com) first; if the issue persists, include the request id from the error banner when contacting support.",
				Sources:  []string{"docs/troubleshooting.md"},
			},
		},
	}}
}

// Lookup returns the first scripted answer whose keywords appear in the
// question, or an echo reply when nothing matches.
func (s *Script) Lookup(question string) Answer {
	q := strings.ToLower(question)
	for _, e := range s.entries {
		for _, kw := range e.keywords {
			if strings.Contains(q, kw) {
				return e.answer
			}
		}
	}
	return Answer{
		Markdown: fmt.Sprintf("You asked: *%s*\n\nI do not have a scripted answer for that yet.", strings.TrimSpace(question)),
	}
}
