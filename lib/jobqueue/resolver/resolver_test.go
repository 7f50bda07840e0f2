package resolver

import (
	"context"
	"reflect"
	"sort"
	"testing"
)

func identityShuffle(names []string) []string {
	return append([]string{}, names...)
}

func TestResolveQueueNamesWildcardAndNegatedMapping(t *testing.T) {
	known := []string{"exact_queue_name", "exact_queue_name_extended", "other_queue_name"}
	mapping := map[string][]string{
		"exact": {"!exact_queue_name_extended"},
	}
	patterns := []string{"exact*", "@exact"}

	got := ResolveQueueNames(patterns, mapping, known)
	want := []string{"exact_queue_name"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ResolveQueueNames() = %v, want %v", got, want)
	}
}

func TestResolveQueueNamesStaticAlwaysIncluded(t *testing.T) {
	got := ResolveQueueNames([]string{"ghost_queue"}, nil, []string{"other"})
	want := []string{"ghost_queue"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ResolveQueueNames() = %v, want %v", got, want)
	}
}

func TestResolveQueueNamesNoDuplicates(t *testing.T) {
	known := []string{"a1", "a2"}
	got := ResolveQueueNames([]string{"a*", "a1", "a*"}, nil, known)
	seen := map[string]int{}
	for _, n := range got {
		seen[n]++
	}
	for n, c := range seen {
		if c != 1 {
			t.Fatalf("ResolveQueueNames() contains %q %d times, want 1", n, c)
		}
	}
}

func TestResolveQueueNamesIdempotentOnResolvedInput(t *testing.T) {
	resolved := []string{"x", "y", "z"}
	got := ResolveQueueNames(resolved, nil, []string{"x", "y", "z", "w"})
	if !reflect.DeepEqual(got, resolved) {
		t.Fatalf("ResolveQueueNames() on already-resolved input = %v, want unchanged %v", got, resolved)
	}
}

func TestPrioritizeQueuesDefaultBucketSplicing(t *testing.T) {
	var queues []string
	for _, prefix := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		queues = append(queues, prefix+"1"+prefix, prefix+"2"+prefix, prefix+"3"+prefix)
	}

	patterns := []QueuePriorityPattern{
		{Patterns: []string{"*1*"}},
		{Patterns: []string{"default"}},
		{Patterns: []string{"*3*"}},
	}

	got := PrioritizeQueues(queues, patterns, identityShuffle)

	var group1, group2, group3 []string
	for _, q := range got {
		switch {
		case contains(q, '1'):
			group1 = append(group1, q)
		case contains(q, '2'):
			group2 = append(group2, q)
		case contains(q, '3'):
			group3 = append(group3, q)
		}
	}
	// every *1* queue must precede every *2* queue, which must precede
	// every *3* queue.
	lastOne := indexOfSuffix(got, group1[len(group1)-1])
	firstTwo := indexOfSuffix(got, group2[0])
	lastTwo := indexOfSuffix(got, group2[len(group2)-1])
	firstThree := indexOfSuffix(got, group3[0])
	if !(lastOne < firstTwo && lastTwo < firstThree) {
		t.Fatalf("PrioritizeQueues() ordering violated: %v", got)
	}
}

func contains(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func indexOfSuffix(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

func TestPrioritizeQueuesIsPermutation(t *testing.T) {
	queues := []string{"a", "b", "c", "d", "e"}
	patterns := []QueuePriorityPattern{
		{Patterns: []string{"a", "b"}, ShouldDistributeFairly: true},
		{Patterns: []string{"default"}},
	}

	got := PrioritizeQueues(queues, patterns, identityShuffle)

	gotSorted := append([]string{}, got...)
	wantSorted := append([]string{}, queues...)
	sort.Strings(gotSorted)
	sort.Strings(wantSorted)
	if !reflect.DeepEqual(gotSorted, wantSorted) {
		t.Fatalf("PrioritizeQueues() = %v is not a permutation of %v", got, queues)
	}
}

func TestPrioritizeQueuesNoPatternsIsIdentity(t *testing.T) {
	queues := []string{"a", "b", "c"}
	got := PrioritizeQueues(queues, nil, identityShuffle)
	if !reflect.DeepEqual(got, queues) {
		t.Fatalf("PrioritizeQueues() with no patterns = %v, want unchanged %v", got, queues)
	}
}

func TestTransformingQueueResolverChains(t *testing.T) {
	mapping := &fakeMappingSource{
		mapping: map[string][]string{"workers": {"email*"}},
		known:   []string{"email_high", "email_low", "sms"},
	}
	priority := &fakePrioritySource{
		patterns: []QueuePriorityPattern{
			{Patterns: []string{"email_high"}},
			{Patterns: []string{"default"}},
		},
	}

	r := NewTransformingQueueResolver(
		NewDynamicMappingTransformer(mapping, 0),
		NewDynamicPriorityTransformer(priority, 0, identityShuffle),
	)

	got, err := r.Transform(context.Background(), []string{"@workers"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := []string{"email_high", "email_low"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Transform() = %v, want %v", got, want)
	}
}

type fakeMappingSource struct {
	mapping map[string][]string
	known   []string
}

func (f *fakeMappingSource) FetchDynamicMapping(_ context.Context) (map[string][]string, error) {
	return f.mapping, nil
}

func (f *fakeMappingSource) FetchKnownQueueNames(_ context.Context) ([]string, error) {
	return f.known, nil
}

type fakePrioritySource struct {
	patterns []QueuePriorityPattern
}

func (f *fakePrioritySource) FetchPriorityPatterns(_ context.Context) ([]QueuePriorityPattern, error) {
	return f.patterns, nil
}
