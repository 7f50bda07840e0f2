package resolver

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// MappingSource supplies the two pieces of server state a
// DynamicMappingTransformer needs to resolve patterns: the named-identifier
// mapping (qmore:dynamic) and the current set of known queue names
// (queues.counts).
type MappingSource interface {
	FetchDynamicMapping(ctx context.Context) (map[string][]string, error)
	FetchKnownQueueNames(ctx context.Context) ([]string, error)
}

// DynamicMappingTransformer expands "@identifier" references against a
// cached named-pattern mapping, then resolves the resulting pattern list
// (static names, "*"-wildcards, and "!"-negations) against the current set
// of known queue names.
type DynamicMappingTransformer struct {
	source MappingSource
	cache  *ttlCache
}

func NewDynamicMappingTransformer(source MappingSource, refreshEvery int64) *DynamicMappingTransformer {
	return &DynamicMappingTransformer{
		source: source,
		cache:  newTTLCache(refreshEvery),
	}
}

func (t *DynamicMappingTransformer) Transform(ctx context.Context, patterns []string) ([]string, error) {
	mapping, err := t.mapping(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: fetch dynamic mapping: %w", err)
	}
	known, err := t.source.FetchKnownQueueNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: fetch known queue names: %w", err)
	}
	return ResolveQueueNames(patterns, mapping, known), nil
}

func (t *DynamicMappingTransformer) mapping(ctx context.Context) (map[string][]string, error) {
	if v, ok := t.cache.get("mapping"); ok {
		return v.(map[string][]string), nil
	}
	mapping, err := t.source.FetchDynamicMapping(ctx)
	if err != nil {
		return nil, err
	}
	t.cache.set("mapping", mapping)
	return mapping, nil
}

// expandDynamic replaces every "@name" (optionally "!@name") token with the
// pattern list registered for name under mapping, flipping each resulting
// pattern's polarity when the reference itself was negated. Tokens that
// aren't a dynamic reference pass through unchanged.
func expandDynamic(tokens []string, mapping map[string][]string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		negatedRef := isNegated(tok)
		rest := tok
		if negatedRef {
			rest = stripNegation(tok)
		}
		if len(rest) == 0 || rest[0] != '@' {
			out = append(out, tok)
			continue
		}
		name := rest[1:]
		for _, p := range mapping[name] {
			if negatedRef {
				p = flipPolarity(p)
			}
			out = append(out, p)
		}
	}
	return out
}

// ResolveQueueNames is the pure transform DynamicMappingTransformer applies:
// expand any "@identifier" references against mapping, then walk the
// resulting pattern list in order, building an ordered, duplicate-free
// result set. Static patterns are always included (even if no matching
// queue currently exists); "*"-wildcards add every currently-matching
// member of known; a leading "!" removes matches from the result built so
// far instead of adding them.
func ResolveQueueNames(patterns []string, mapping map[string][]string, known []string) []string {
	expanded := expandDynamic(patterns, mapping)

	var result []string
	seen := make(map[string]bool)

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	removeExact := func(name string) {
		if !seen[name] {
			return
		}
		delete(seen, name)
		result = lo.Without(result, name)
	}
	removeMatching := func(re interface{ MatchString(string) bool }) {
		filtered := result[:0]
		for _, n := range result {
			if re.MatchString(n) {
				delete(seen, n)
				continue
			}
			filtered = append(filtered, n)
		}
		result = filtered
	}

	for _, p := range expanded {
		negated := isNegated(p)
		body := p
		if negated {
			body = stripNegation(p)
		}
		wildcard := isWildcard(body)

		switch {
		case negated && wildcard:
			removeMatching(compileWildcard(body))
		case negated:
			removeExact(body)
		case wildcard:
			re := compileWildcard(body)
			for _, q := range known {
				if re.MatchString(q) {
					add(q)
				}
			}
		default:
			add(body)
		}
	}
	return result
}
