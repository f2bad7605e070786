package session

import (
	"strings"

	"github.com/ashureev/copilot-widget/internal/transport"
)

// ExtractCitations derives the deduplicated citation list for a completed
// turn from raw transport metadata. Entries without a non-empty source
// locator are dropped; first-seen order is preserved. Nil and malformed
// input yield an empty result.
func ExtractCitations(raw []transport.RawCitation) []Citation {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(raw))
	var out []Citation
	for _, rc := range raw {
		locator := strings.TrimSpace(rc.SourceFilePath)
		if locator == "" || seen[locator] {
			continue
		}
		seen[locator] = true
		out = append(out, Citation{SourceLocator: locator, Label: locator})
	}
	return out
}
