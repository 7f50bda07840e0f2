package resolver

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// PrioritySource supplies the cached priority-bucket configuration
// (qmore:priority, or the migrated ql:qp:identifiers/ql:qp:priorities
// encoding) a DynamicPriorityTransformer resolves against.
type PrioritySource interface {
	FetchPriorityPatterns(ctx context.Context) ([]QueuePriorityPattern, error)
}

// Shuffler randomizes the order of names in place and returns them; it is
// swappable so tests can supply a deterministic (or identity) shuffle.
type Shuffler func(names []string) []string

// DynamicPriorityTransformer reorders an already-resolved queue-name list
// into priority buckets: each configured QueuePriorityPattern claims its
// matching, not-yet-claimed members in turn, with one bucket allowed to be
// the literal ["default"] placeholder for "everything left over".
type DynamicPriorityTransformer struct {
	source  PrioritySource
	cache   *ttlCache
	shuffle Shuffler
}

func NewDynamicPriorityTransformer(source PrioritySource, refreshEvery int64, shuffle Shuffler) *DynamicPriorityTransformer {
	if shuffle == nil {
		shuffle = CryptoShuffle
	}
	return &DynamicPriorityTransformer{
		source:  source,
		cache:   newTTLCache(refreshEvery),
		shuffle: shuffle,
	}
}

func (t *DynamicPriorityTransformer) Transform(ctx context.Context, queueNames []string) ([]string, error) {
	patterns, err := t.patterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: fetch priority patterns: %w", err)
	}
	if len(patterns) == 0 {
		return queueNames, nil
	}
	return PrioritizeQueues(queueNames, patterns, t.shuffle), nil
}

func (t *DynamicPriorityTransformer) patterns(ctx context.Context) ([]QueuePriorityPattern, error) {
	if v, ok := t.cache.get("priority"); ok {
		return v.([]QueuePriorityPattern), nil
	}
	patterns, err := t.source.FetchPriorityPatterns(ctx)
	if err != nil {
		return nil, err
	}
	t.cache.set("priority", patterns)
	return patterns, nil
}

// applyBucketPatterns resolves one bucket's pattern list against pool (the
// queue names not yet claimed by an earlier bucket), in the same
// static/wildcard/negation semantics as ResolveQueueNames, except static
// names and wildcards only ever claim members of pool (a static name not
// in pool is skipped) and negation only ever removes from the bucket being
// built.
func applyBucketPatterns(patterns []string, pool []string) []string {
	var bucket []string
	inBucket := make(map[string]bool)

	add := func(name string) {
		if !inBucket[name] {
			inBucket[name] = true
			bucket = append(bucket, name)
		}
	}
	removeExact := func(name string) {
		if !inBucket[name] {
			return
		}
		delete(inBucket, name)
		bucket = lo.Without(bucket, name)
	}
	removeMatching := func(re interface{ MatchString(string) bool }) {
		filtered := bucket[:0]
		for _, n := range bucket {
			if re.MatchString(n) {
				delete(inBucket, n)
				continue
			}
			filtered = append(filtered, n)
		}
		bucket = filtered
	}

	for _, p := range patterns {
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
			for _, q := range pool {
				if re.MatchString(q) {
					add(q)
				}
			}
		default:
			if lo.Contains(pool, body) {
				add(body)
			}
		}
	}
	return bucket
}

// PrioritizeQueues is the pure transform DynamicPriorityTransformer applies.
// Each pattern bucket (in configured order) claims its matching members
// from the pool of not-yet-claimed queueNames (deduplicated up front); a
// bucket whose pattern list is exactly ["default"] is not resolved
// against pool at all but instead marks the position where the queues no
// bucket claims are spliced back in, in their original relative order (or
// shuffled, if that bucket set ShouldDistributeFairly). The result is a
// permutation of the deduplicated queueNames.
func PrioritizeQueues(queueNames []string, patterns []QueuePriorityPattern, shuffle Shuffler) []string {
	if shuffle == nil {
		shuffle = CryptoShuffle
	}

	pool := lo.Uniq(queueNames)
	var groups [][]string
	defaultPos := -1
	defaultFair := false

	for _, pp := range patterns {
		if isDefaultPattern(pp.Patterns) {
			defaultPos = len(groups)
			defaultFair = pp.ShouldDistributeFairly
			continue
		}
		bucket := applyBucketPatterns(pp.Patterns, pool)
		pool = lo.Without(pool, bucket...)
		if pp.ShouldDistributeFairly {
			bucket = shuffle(bucket)
		}
		groups = append(groups, bucket)
	}
	if defaultPos == -1 {
		defaultPos = len(groups)
	}

	remaining := pool
	if defaultFair {
		remaining = shuffle(remaining)
	}

	ordered := make([][]string, 0, len(groups)+1)
	ordered = append(ordered, groups[:defaultPos]...)
	ordered = append(ordered, remaining)
	ordered = append(ordered, groups[defaultPos:]...)

	var flat []string
	for _, g := range ordered {
		flat = append(flat, g...)
	}
	return flat
}
