// Package resolver implements the two queue-identifiers transformers a
// BaseWorker composes to turn a configured list of queue patterns into the
// concrete, ordered queue names it pops from: DynamicMappingTransformer
// (named identifier groups, wildcards, negation) and
// DynamicPriorityTransformer (priority buckets with optional fair shuffling).
package resolver

import (
	"regexp"
	"strings"
)

// QueuePriorityPattern is one bucket of a priority configuration: the list
// of raw patterns that select its members, and whether the bucket's final
// order should be shuffled instead of left in pop-priority order.
type QueuePriorityPattern struct {
	Patterns               []string
	ShouldDistributeFairly bool
}

func isDefaultPattern(patterns []string) bool {
	return len(patterns) == 1 && patterns[0] == "default"
}

func isNegated(pattern string) bool {
	return strings.HasPrefix(pattern, "!")
}

func stripNegation(pattern string) string {
	return strings.TrimPrefix(pattern, "!")
}

func flipPolarity(pattern string) string {
	if isNegated(pattern) {
		return stripNegation(pattern)
	}
	return "!" + pattern
}

func isWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}

// compileWildcard turns a '*'-glob pattern into an anchored regexp. '*'
// matches any run of characters (including none); everything else is
// matched literally.
func compileWildcard(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
