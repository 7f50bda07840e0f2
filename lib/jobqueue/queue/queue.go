// Package queue implements Queue, the per-queue handle a worker or
// producer uses to put, pop, and inspect jobs. Grounded command-for-command
// on original_source/reqless/queue.py.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/logger"
)

// Named is the optional interface a processor type may implement so its
// fully-qualified name, rather than a bare string, is used as Klass in
// Put/Requeue/Recur — spec.md §4.3's "class-name normalization".
type Named interface {
	Name() string
}

// PutOptions configures Put, Requeue, and (partially) Recur.
type PutOptions struct {
	Priority  int
	Tags      []string
	Delay     int
	Retries   int
	Jid       string
	Depends   []string
	Throttles []string
}

const defaultRetries = 5

// Queue is a handle bound to one queue name, a ScriptClient, and the
// worker identity used when claiming jobs.
type Queue struct {
	name       string
	workerName string
	invoker    job.Invoker
	importer   *importer.Registry
	log        logger.StandardLogger
}

func New(name string, invoker job.Invoker, workerName string, imp *importer.Registry, log logger.StandardLogger) *Queue {
	if log == nil {
		log = &logger.DiscardLogger{}
	}
	return &Queue{name: name, workerName: workerName, invoker: invoker, importer: imp, log: log}
}

func (q *Queue) Name() string { return q.name }

// Throttle returns the implicit per-queue concurrency limiter, named
// "ql:q:<name>" per spec.
func (q *Queue) Throttle() *job.Throttle {
	return job.NewThrottle(q.invoker, "ql:q:"+q.name)
}

// klassString applies spec.md's class-name normalization: a Named value
// contributes its own name, anything else is forwarded as a bare string.
func klassString(klass any) string {
	if n, ok := klass.(Named); ok {
		return n.Name()
	}
	if s, ok := klass.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", klass)
}

func jidOrGenerated(jid string) string {
	if jid != "" {
		return jid
	}
	return uuid.New().String()
}

func jsonOrEmpty(v []string) string {
	encoded, _ := json.Marshal(orEmptySlice(v))
	return string(encoded)
}

func orEmptySlice(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func withDefaults(opts PutOptions) PutOptions {
	if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	return opts
}

// Put creates (or relocates) a job in this queue, returning its jid.
func (q *Queue) Put(ctx context.Context, klass any, data string, opts PutOptions) (string, error) {
	opts = withDefaults(opts)
	jid := jidOrGenerated(opts.Jid)
	raw, err := q.invoker.Invoke(ctx, "put",
		q.workerName, q.name, jid, klassString(klass), data, opts.Delay,
		"priority", opts.Priority,
		"tags", jsonOrEmpty(opts.Tags),
		"retries", opts.Retries,
		"depends", jsonOrEmpty(opts.Depends),
		"throttles", jsonOrEmpty(opts.Throttles),
	)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return jid, nil
	}
	return raw, nil
}

// Requeue is Put for a job that is expected to already exist (typically a
// failed job being retried into this queue).
func (q *Queue) Requeue(ctx context.Context, klass any, data string, opts PutOptions) (string, error) {
	opts = withDefaults(opts)
	jid := jidOrGenerated(opts.Jid)
	raw, err := q.invoker.Invoke(ctx, "requeue",
		q.workerName, q.name, jid, klassString(klass), data, opts.Delay,
		"priority", opts.Priority,
		"tags", jsonOrEmpty(opts.Tags),
		"retries", opts.Retries,
		"depends", jsonOrEmpty(opts.Depends),
		"throttles", jsonOrEmpty(opts.Throttles),
	)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return jid, nil
	}
	return raw, nil
}

// RecurOptions configures Recur.
type RecurOptions struct {
	Offset    int
	Priority  int
	Tags      []string
	Retries   int
	Jid       string
	Throttles []string
}

// Recur installs a recurring schedule whose first spawn fires offset
// seconds from now, then every interval seconds thereafter.
func (q *Queue) Recur(ctx context.Context, klass any, data string, interval int, opts RecurOptions) (string, error) {
	if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	jid := jidOrGenerated(opts.Jid)
	raw, err := q.invoker.Invoke(ctx, "recur",
		q.name, jid, klassString(klass), data,
		"interval", interval, opts.Offset,
		"priority", opts.Priority,
		"tags", jsonOrEmpty(opts.Tags),
		"retries", opts.Retries,
		"throttles", jsonOrEmpty(opts.Throttles),
	)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return jid, nil
	}
	return raw, nil
}

// Pop reserves up to count jobs from this queue to this worker and always
// returns a slice (possibly empty); count <= 0 is treated as 1. PopOne is
// the unary form.
func (q *Queue) Pop(ctx context.Context, count int) ([]*job.Job, error) {
	n := count
	if n <= 0 {
		n = 1
	}
	raw, err := q.invoker.Invoke(ctx, "pop", q.name, q.workerName, n)
	if err != nil {
		return nil, err
	}
	return job.DecodeList(q.invoker, q.importer, q.log, raw)
}

// PopOne is Pop's unary form: a single job, or nil if the queue is empty.
func (q *Queue) PopOne(ctx context.Context) (*job.Job, error) {
	jobs, err := q.Pop(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// Peek is Pop without reserving: it returns up to count jobs without
// assigning them to this worker.
func (q *Queue) Peek(ctx context.Context, count int) ([]*job.Job, error) {
	n := count
	if n <= 0 {
		n = 1
	}
	raw, err := q.invoker.Invoke(ctx, "peek", q.name, n)
	if err != nil {
		return nil, err
	}
	return job.DecodeList(q.invoker, q.importer, q.log, raw)
}

// Bucket holds one time-bucketed statistic (either wait or run).
type Bucket struct {
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Histogram []float64 `json:"histogram"`
}

// Stats is the {wait, run} pair the server reports for one queue/day.
type Stats struct {
	Wait Bucket `json:"wait"`
	Run  Bucket `json:"run"`
}

// Stats returns wait/run statistics for date ("today", i.e. the current
// time, when date is empty).
func (q *Queue) Stats(ctx context.Context, date string) (*Stats, error) {
	if date == "" {
		date = strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', -1, 64)
	}
	raw, err := q.invoker.Invoke(ctx, "stats", q.name, date)
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("queue: decode stats %q: %w", raw, err)
	}
	return &stats, nil
}

// Pause stops this queue from dispatching any more jobs.
func (q *Queue) Pause(ctx context.Context) error {
	_, err := q.invoker.Invoke(ctx, "pause", q.name)
	return err
}

// Unpause resumes dispatch on this queue.
func (q *Queue) Unpause(ctx context.Context) error {
	_, err := q.invoker.Invoke(ctx, "unpause", q.name)
	return err
}

// Length is the total of waiting + running + scheduled + depends +
// stalled + throttled jobs, per the server's definition.
func (q *Queue) Length(ctx context.Context) (int, error) {
	raw, err := q.invoker.Invoke(ctx, "length", q.name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("queue: decode length %q: %w", raw, err)
	}
	return n, nil
}

// Counts reports the raw per-state job counts for this queue, equivalent
// to qless's "queues <name>" command.
func (q *Queue) Counts(ctx context.Context) (map[string]any, error) {
	raw, err := q.invoker.Invoke(ctx, "queues", q.name)
	if err != nil {
		return nil, err
	}
	var counts map[string]any
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return nil, fmt.Errorf("queue: decode counts %q: %w", raw, err)
	}
	return counts, nil
}
