package dispatch

import (
	"regexp"
	"strings"

	"pagenotify/internal/types"
)

// ShouldSkip decides whether the canonical rendered text suppresses this
// run of the rule. Conditions are checked in order and short-circuit:
// the unchanged-since-last-send check first, then the configured text
// strategy. An empty pattern disables the strategy entirely; this mirrors
// how rules behave in the admin UI, where a blank skip text means "no
// text condition".
func ShouldSkip(strategy types.SkipStrategy, pattern, renderedText, previousSentText string, mustDiffer bool) bool {
	if mustDiffer && previousSentText != "" && previousSentText == renderedText {
		return true
	}
	if pattern == "" {
		return false
	}
	switch strategy {
	case types.SkipContains:
		return strings.Contains(renderedText, pattern)
	case types.SkipNotContains:
		return !strings.Contains(renderedText, pattern)
	case types.SkipRegex:
		// The pattern is matched as a literal. Operators write plain
		// phrases here; compiling them verbatim would turn stray
		// metacharacters into surprise behavior.
		re, err := regexp.Compile(regexp.QuoteMeta(pattern))
		if err != nil {
			return false
		}
		return re.MatchString(renderedText)
	default:
		return false
	}
}
