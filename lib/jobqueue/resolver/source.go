package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisSource reads the dynamic-mapping and priority-pattern configuration
// directly off the shared Redis connection, bypassing the job-queue script
// entirely: this state is operator-maintained configuration, not
// script-owned job data, so it does not need the script's atomicity.
type RedisSource struct {
	rdb redis.UniversalClient
}

func NewRedisSource(rdb redis.UniversalClient) *RedisSource {
	return &RedisSource{rdb: rdb}
}

// FetchDynamicMapping reads the qmore:dynamic hash. Each value may be
// encoded either as a JSON array of patterns or as a single bare pattern
// string; both are canonicalized to []string here so callers never see the
// encoding difference.
func (s *RedisSource) FetchDynamicMapping(ctx context.Context) (map[string][]string, error) {
	raw, err := s.rdb.HGetAll(ctx, "qmore:dynamic").Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: HGETALL qmore:dynamic: %w", err)
	}
	mapping := make(map[string][]string, len(raw))
	for name, encoded := range raw {
		mapping[name] = canonicalizePatternList(encoded)
	}
	return mapping, nil
}

// FetchKnownQueueNames lists every queue the server currently knows about,
// equivalent to qless's "queues" command with no queue argument.
func (s *RedisSource) FetchKnownQueueNames(ctx context.Context) ([]string, error) {
	names, err := s.rdb.ZRange(ctx, "ql:queues", 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: ZRANGE ql:queues: %w", err)
	}
	return names, nil
}

// FetchPriorityPatterns reads qmore:priority: a list whose members are
// JSON objects of the form {"pattern": <string-or-array>, "fairly":
// <bool>}, in priority order. If that list is empty it falls back to the
// migrated encoding, where ql:qp:priorities lists identifier names in
// order and ql:qp:identifiers maps each identifier name to its own
// {"pattern": ..., "fairly": ...} JSON record.
func (s *RedisSource) FetchPriorityPatterns(ctx context.Context) ([]QueuePriorityPattern, error) {
	raw, err := s.rdb.LRange(ctx, "qmore:priority", 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: LRANGE qmore:priority: %w", err)
	}
	if len(raw) > 0 {
		return decodePriorityRecords(raw)
	}

	names, err := s.rdb.LRange(ctx, "ql:qp:priorities", 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: LRANGE ql:qp:priorities: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	identifiers, err := s.rdb.HGetAll(ctx, "ql:qp:identifiers").Result()
	if err != nil {
		return nil, fmt.Errorf("resolver: HGETALL ql:qp:identifiers: %w", err)
	}
	records := make([]string, 0, len(names))
	for _, name := range names {
		if rec, ok := identifiers[name]; ok {
			records = append(records, rec)
		}
	}
	return decodePriorityRecords(records)
}

type priorityRecord struct {
	Pattern json.RawMessage `json:"pattern"`
	Fairly  bool            `json:"fairly"`
}

func decodePriorityRecords(raw []string) ([]QueuePriorityPattern, error) {
	out := make([]QueuePriorityPattern, 0, len(raw))
	for _, encoded := range raw {
		var rec priorityRecord
		if err := json.Unmarshal([]byte(encoded), &rec); err != nil {
			return nil, fmt.Errorf("resolver: decode priority record %q: %w", encoded, err)
		}
		out = append(out, QueuePriorityPattern{
			Patterns:               canonicalizePatternList(string(rec.Pattern)),
			ShouldDistributeFairly: rec.Fairly,
		})
	}
	return out, nil
}

// canonicalizePatternList resolves Open Question (a): a pattern field may
// be encoded as a JSON array of strings, a single JSON string, or (for
// priority records) a comma-joined bare string. All three canonicalize to
// the same []string.
func canonicalizePatternList(encoded string) []string {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil
	}

	var asArray []string
	if err := json.Unmarshal([]byte(encoded), &asArray); err == nil {
		return asArray
	}

	var asString string
	if err := json.Unmarshal([]byte(encoded), &asString); err == nil {
		encoded = asString
	} else if unquoted, err := strconv.Unquote(encoded); err == nil {
		encoded = unquoted
	}

	var out []string
	for _, p := range strings.Split(encoded, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
