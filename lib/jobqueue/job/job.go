// Package job implements Job and RecurringJob, the client-side snapshot
// of one server-tracked unit of work and the operations that mutate it.
// Every method maps to exactly one ScriptClient.Invoke call, grounded
// command-for-command on original_source/reqless/job.py.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/logger"
)

// Invoker is the subset of client.ScriptClient a Job needs. Defined here
// so job depends only on an interface, not the concrete client type.
type Invoker interface {
	Invoke(ctx context.Context, command string, args ...any) (string, error)
}

// Job is the client-side snapshot of one server-tracked unit of work.
type Job struct {
	invoker  Invoker
	importer *importer.Registry
	log      logger.StandardLogger

	jid          string
	klassName    string
	queueName    string
	data         string
	priority     int
	tags         []string
	throttles    []string
	state        State
	workerName   string
	expiresAt    float64
	retries      int
	retriesLeft  int
	dependencies []string
	dependents   []string
	failure      *Failure
	history      []HistoryEntry
	tracked      bool
	sandbox      string
}

// New wraps a decoded job record for use against invoker. importer and log
// may be nil; importer is required only for Process.
func New(invoker Invoker, imp *importer.Registry, log logger.StandardLogger, raw string) (*Job, error) {
	rec, err := decodeJob(raw)
	if err != nil {
		return nil, fmt.Errorf("job: decode: %w", err)
	}
	if log == nil {
		log = &logger.DiscardLogger{}
	}
	return &Job{
		invoker:      invoker,
		importer:     imp,
		log:          log,
		jid:          rec.Jid,
		klassName:    rec.Klass,
		queueName:    rec.Queue,
		data:         rec.Data,
		priority:     rec.Priority,
		tags:         []string(rec.Tags),
		throttles:    []string(rec.Throttles),
		state:        State(rec.State),
		workerName:   rec.Worker,
		expiresAt:    rec.Expires,
		retries:      rec.Retries,
		retriesLeft:  rec.Remaining,
		dependencies: []string(rec.Dependencies),
		dependents:   []string(rec.Dependents),
		failure:      rec.Failure,
		history:      []HistoryEntry(rec.History),
		tracked:      rec.Tracked,
		sandbox:      rec.Sandbox,
	}, nil
}

// DecodeList decodes a pop/peek reply (a JSON array of job records, or
// null) into a slice of Jobs, in server-returned order.
func DecodeList(invoker Invoker, imp *importer.Registry, log logger.StandardLogger, raw string) ([]*Job, error) {
	recs, err := decodeJobs(raw)
	if err != nil {
		return nil, fmt.Errorf("job: decode list: %w", err)
	}
	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("job: re-encode record: %w", err)
		}
		j, err := New(invoker, imp, log, string(encoded))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (j *Job) Jid() string               { return j.jid }
func (j *Job) KlassName() string         { return j.klassName }
func (j *Job) QueueName() string         { return j.queueName }
func (j *Job) Data() string              { return j.data }
func (j *Job) Priority() int             { return j.priority }
func (j *Job) Tags() []string            { return j.tags }
func (j *Job) Throttles() []string       { return j.throttles }
func (j *Job) State() State              { return j.state }
func (j *Job) WorkerName() string        { return j.workerName }
func (j *Job) ExpiresAt() float64        { return j.expiresAt }
func (j *Job) OriginalRetries() int      { return j.retries }
func (j *Job) RetriesLeft() int          { return j.retriesLeft }
func (j *Job) Dependencies() []string    { return j.dependencies }
func (j *Job) Dependents() []string      { return j.dependents }
func (j *Job) Failure() *Failure         { return j.failure }
func (j *Job) History() []HistoryEntry   { return j.history }
func (j *Job) Tracked() bool             { return j.tracked }
func (j *Job) Sandbox() string           { return j.sandbox }
func (j *Job) SetSandbox(path string)    { j.sandbox = path }
func (j *Job) SetData(data string)       { j.data = data }

// String gives the stable, testable "<klassName jid>" identity.
func (j *Job) String() string {
	return fmt.Sprintf("<%s %s>", j.klassName, j.jid)
}

// Heartbeat renews this job's lock, extending ExpiresAt. Returns
// *client.LostLock if the job is no longer owned by this worker.
func (j *Job) Heartbeat(ctx context.Context) (float64, error) {
	raw, err := j.invoker.Invoke(ctx, "heartbeat", j.jid, j.workerName, j.data)
	if err != nil {
		var lost *client.LostLock
		if errors.As(err, &lost) {
			return 0, lost
		}
		return 0, err
	}
	expires, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("job: parse heartbeat reply %q: %w", raw, err)
	}
	j.expiresAt = expires
	return expires, nil
}

// Complete marks this job done. With nextQueue it instead advances the job
// to waiting in that queue after delay, with the given dependencies.
func (j *Job) Complete(ctx context.Context, nextQueue string, delay int, depends []string) (bool, error) {
	var (
		raw string
		err error
	)
	if nextQueue != "" {
		dependsJSON, encErr := json.Marshal(orEmpty(depends))
		if encErr != nil {
			return false, encErr
		}
		raw, err = j.invoker.Invoke(ctx, "complete",
			j.jid, j.workerName, j.queueName, j.data,
			"next", nextQueue, "delay", delay, "depends", string(dependsJSON))
	} else {
		raw, err = j.invoker.Invoke(ctx, "complete", j.jid, j.workerName, j.queueName, j.data)
	}
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if nextQueue != "" {
		j.state = Waiting
		j.queueName = nextQueue
		j.dependencies = depends
	} else {
		j.state = Complete
	}
	return true, nil
}

// Fail moves this job to failed under the given taxonomy group. Returns
// the jid on success, or false if the job was not running.
func (j *Job) Fail(ctx context.Context, group, message string) (string, bool, error) {
	raw, err := j.invoker.Invoke(ctx, "fail", j.jid, j.workerName, group, message, j.data)
	if err != nil {
		return "", false, err
	}
	if raw == "" {
		return "", false, nil
	}
	j.state = Failed
	j.failure = &Failure{Group: group, Message: message}
	return raw, true, nil
}

// Cancel removes this job (and any dependents the script also cancels)
// entirely, returning every cancelled jid.
func (j *Job) Cancel(ctx context.Context) ([]string, error) {
	raw, err := j.invoker.Invoke(ctx, "cancel", j.jid)
	if err != nil {
		return nil, err
	}
	var jids []string
	if err := json.Unmarshal([]byte(raw), &jids); err != nil {
		return nil, fmt.Errorf("job: decode cancel reply %q: %w", raw, err)
	}
	return jids, nil
}

// Retry decrements RetriesLeft and re-enqueues this job after delay, or —
// once retries are exhausted — fails it with group/message, which must
// both be supplied in that case.
func (j *Job) Retry(ctx context.Context, delay int, group, message string) (int, error) {
	args := []any{j.jid, j.queueName, j.workerName, strconv.Itoa(delay)}
	if group != "" && message != "" {
		args = append(args, group, message)
	}
	raw, err := j.invoker.Invoke(ctx, "retry", args...)
	if err != nil {
		return 0, err
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("job: parse retry reply %q: %w", raw, err)
	}
	j.retriesLeft = remaining
	return remaining, nil
}

// Move relocates this job to a different queue; any current worker's
// subsequent Heartbeat/Complete on the old assignment will fail.
func (j *Job) Move(ctx context.Context, queue string, delay int, depends []string) (string, error) {
	throttlesJSON, err := json.Marshal(orEmpty(j.throttles))
	if err != nil {
		return "", err
	}
	dependsJSON, err := json.Marshal(orEmpty(depends))
	if err != nil {
		return "", err
	}
	raw, err := j.invoker.Invoke(ctx, "put",
		j.workerName, queue, j.jid, j.klassName, j.data, delay,
		"depends", string(dependsJSON), "throttles", string(throttlesJSON))
	if err != nil {
		return "", err
	}
	j.queueName = queue
	j.state = Waiting
	return raw, nil
}

// Track toggles pub/sub event broadcast on for this jid.
func (j *Job) Track(ctx context.Context) (bool, error) {
	raw, err := j.invoker.Invoke(ctx, "track", "track", j.jid)
	if err != nil {
		return false, err
	}
	j.tracked = raw == "1"
	return j.tracked, nil
}

// Untrack toggles pub/sub event broadcast off for this jid.
func (j *Job) Untrack(ctx context.Context) (bool, error) {
	raw, err := j.invoker.Invoke(ctx, "track", "untrack", j.jid)
	if err != nil {
		return false, err
	}
	ok := raw == "1"
	if ok {
		j.tracked = false
	}
	return ok, nil
}

// Tag adds tags to this job's tag list.
func (j *Job) Tag(ctx context.Context, tags ...string) ([]string, error) {
	args := make([]any, 0, len(tags)+1)
	args = append(args, j.jid)
	for _, t := range tags {
		args = append(args, t)
	}
	raw, err := j.invoker.Invoke(ctx, "tag", append([]any{"add"}, args...)...)
	if err != nil {
		return nil, err
	}
	var updated []string
	if err := json.Unmarshal([]byte(raw), &updated); err != nil {
		return nil, fmt.Errorf("job: decode tag reply %q: %w", raw, err)
	}
	j.tags = updated
	return updated, nil
}

// Untag removes tags from this job's tag list.
func (j *Job) Untag(ctx context.Context, tags ...string) ([]string, error) {
	args := make([]any, 0, len(tags)+1)
	args = append(args, j.jid)
	for _, t := range tags {
		args = append(args, t)
	}
	raw, err := j.invoker.Invoke(ctx, "tag", append([]any{"remove"}, args...)...)
	if err != nil {
		return nil, err
	}
	var updated []string
	if err := json.Unmarshal([]byte(raw), &updated); err != nil {
		return nil, fmt.Errorf("job: decode untag reply %q: %w", raw, err)
	}
	j.tags = updated
	return updated, nil
}

// Depend adds jids to this job's dependency list. Only permitted when the
// job already has at least one dependency; otherwise a no-op returning
// false.
func (j *Job) Depend(ctx context.Context, jids ...string) (bool, error) {
	args := make([]any, 0, len(jids)+2)
	args = append(args, j.jid, "on")
	for _, jid := range jids {
		args = append(args, jid)
	}
	raw, err := j.invoker.Invoke(ctx, "depends", args...)
	if err != nil {
		return false, err
	}
	ok := raw != "" && raw != "0"
	if ok {
		j.dependencies = append(j.dependencies, jids...)
	}
	return ok, nil
}

// Undepend removes jids from this job's dependency list, or every
// dependency when all is true.
func (j *Job) Undepend(ctx context.Context, all bool, jids ...string) (bool, error) {
	var args []any
	if all {
		args = []any{j.jid, "off", "all"}
	} else {
		args = append([]any{j.jid, "off"}, toAnySlice(jids)...)
	}
	raw, err := j.invoker.Invoke(ctx, "depends", args...)
	if err != nil {
		return false, err
	}
	ok := raw != "" && raw != "0"
	if ok {
		if all {
			j.dependencies = nil
		} else {
			j.dependencies = removeAll(j.dependencies, jids)
		}
	}
	return ok, nil
}

// Timeout administratively forces this job to stalled immediately.
func (j *Job) Timeout(ctx context.Context) error {
	_, err := j.invoker.Invoke(ctx, "timeout", j.jid)
	return err
}

// Process resolves KlassName via the importer registry, selects a method
// named after QueueName (falling back to Process), and invokes it. Any
// panic or returned error becomes Fail(queue+"-"+kind, message), where
// message is the error's text or the panic value; no stack trace is
// recorded. An
// unresolvable class or method becomes the corresponding *client.ImportError,
// *client.MethodMissing, or *client.MethodTypeError, also surfaced via Fail.
func (j *Job) Process(ctx context.Context) error {
	if j.importer == nil {
		return fmt.Errorf("job: Process called with no importer.Registry configured")
	}

	resolved, err := j.importer.Import(j.klassName)
	if err != nil {
		j.log.Warnf("job %s: import %s failed: %v", j.jid, j.klassName, err)
		_, _, failErr := j.Fail(ctx, j.queueName+"-import-error", err.Error())
		if failErr != nil {
			return failErr
		}
		return &client.ImportError{KlassName: j.klassName, Err: err}
	}

	dispatch, method, err := resolveDispatch(resolved, j.queueName)
	if err != nil {
		j.log.Errorf("job %s: %v", j.jid, err)
		var group string
		switch err.(type) {
		case *client.MethodMissing:
			group = j.queueName + "-method-missing"
		default:
			group = j.queueName + "-method-type"
		}
		if _, _, failErr := j.Fail(ctx, group, err.Error()); failErr != nil {
			return failErr
		}
		return err
	}
	_ = method

	return j.runDispatch(ctx, dispatch)
}

// runDispatch invokes dispatch, converting a panic or returned error into
// a Fail call instead of propagating it out of the worker loop.
func (j *Job) runDispatch(ctx context.Context, dispatch func(ctx context.Context, j *Job) (err error)) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Errorf("job %s: processor panicked: %v", j.jid, r)
			_, _, failErr := j.Fail(ctx, j.queueName+"-panic", fmt.Sprintf("%v", r))
			retErr = failErr
		}
	}()

	if err := dispatch(ctx, j); err != nil {
		j.log.Errorf("job %s: processing error: %v", j.jid, err)
		kind := fmt.Sprintf("%T", err)
		_, _, failErr := j.Fail(ctx, j.queueName+"-"+kind, err.Error())
		if failErr != nil {
			return failErr
		}
		return nil
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func removeAll(list []string, remove []string) []string {
	gone := make(map[string]bool, len(remove))
	for _, r := range remove {
		gone[r] = true
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !gone[v] {
			out = append(out, v)
		}
	}
	return out
}
