package job

import (
	"context"
	"fmt"
)

// RecurringJob is a schedule that spawns a regular Job every Interval
// seconds. Every setter pushes the change through recur.update
// immediately — there is no separate "save" step, matching
// original_source/reqless/job.py's property-setter behavior.
type RecurringJob struct {
	invoker Invoker

	jid        string
	klassName  string
	queueName  string
	data       string
	priority   int
	tags       []string
	throttles  []string
	retries    int
	interval   int
	count      int
	next       float64
}

func NewRecurring(invoker Invoker, raw string) (*RecurringJob, error) {
	rec, err := decodeRecurring(raw)
	if err != nil {
		return nil, fmt.Errorf("job: decode recurring: %w", err)
	}
	return &RecurringJob{
		invoker:   invoker,
		jid:       rec.Jid,
		klassName: rec.Klass,
		queueName: rec.Queue,
		data:      rec.Data,
		priority:  rec.Priority,
		tags:      []string(rec.Tags),
		throttles: []string(rec.Throttles),
		retries:   rec.Retries,
		interval:  rec.Interval,
		count:     rec.Count,
		next:      rec.Next,
	}, nil
}

func (r *RecurringJob) Jid() string         { return r.jid }
func (r *RecurringJob) KlassName() string   { return r.klassName }
func (r *RecurringJob) QueueName() string   { return r.queueName }
func (r *RecurringJob) Data() string        { return r.data }
func (r *RecurringJob) Priority() int       { return r.priority }
func (r *RecurringJob) Tags() []string      { return r.tags }
func (r *RecurringJob) Throttles() []string { return r.throttles }
func (r *RecurringJob) Retries() int        { return r.retries }
func (r *RecurringJob) Interval() int       { return r.interval }
func (r *RecurringJob) Count() int          { return r.count }
func (r *RecurringJob) Next() float64       { return r.next }

func (r *RecurringJob) String() string {
	return fmt.Sprintf("<%s %s (recurring)>", r.klassName, r.jid)
}

// SetInterval updates the interval between spawns.
func (r *RecurringJob) SetInterval(ctx context.Context, interval int) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "interval", interval); err != nil {
		return err
	}
	r.interval = interval
	return nil
}

// SetRetries updates the retry count applied to each spawned Job.
func (r *RecurringJob) SetRetries(ctx context.Context, retries int) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "retries", retries); err != nil {
		return err
	}
	r.retries = retries
	return nil
}

// SetCount overrides the recorded spawn count.
func (r *RecurringJob) SetCount(ctx context.Context, count int) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "count", count); err != nil {
		return err
	}
	r.count = count
	return nil
}

// SetData replaces the payload every future spawn will carry.
func (r *RecurringJob) SetData(ctx context.Context, data string) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "data", data); err != nil {
		return err
	}
	r.data = data
	return nil
}

// SetPriority replaces the priority every future spawn will carry.
func (r *RecurringJob) SetPriority(ctx context.Context, priority int) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "priority", priority); err != nil {
		return err
	}
	r.priority = priority
	return nil
}

// SetKlass rebinds future spawns to a different processor class name.
func (r *RecurringJob) SetKlass(ctx context.Context, klassName string) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "klass", klassName); err != nil {
		return err
	}
	r.klassName = klassName
	return nil
}

// Move reattaches this schedule to a different queue.
func (r *RecurringJob) Move(ctx context.Context, queue string) error {
	if _, err := r.invoker.Invoke(ctx, "recur.update", r.jid, "queue", queue); err != nil {
		return err
	}
	r.queueName = queue
	return nil
}

// Cancel stops this schedule (unrecur). No further jobs will be spawned.
func (r *RecurringJob) Cancel(ctx context.Context) ([]string, error) {
	if _, err := r.invoker.Invoke(ctx, "unrecur", r.jid); err != nil {
		return nil, err
	}
	return []string{r.jid}, nil
}

// Tag adds tags to this schedule (applied to every future spawn).
func (r *RecurringJob) Tag(ctx context.Context, tags ...string) error {
	args := make([]any, 0, len(tags)+1)
	args = append(args, r.jid)
	for _, t := range tags {
		args = append(args, t)
	}
	if _, err := r.invoker.Invoke(ctx, "recur.tag", args...); err != nil {
		return err
	}
	r.tags = append(r.tags, tags...)
	return nil
}

// Untag removes tags from this schedule.
func (r *RecurringJob) Untag(ctx context.Context, tags ...string) error {
	args := make([]any, 0, len(tags)+1)
	args = append(args, r.jid)
	for _, t := range tags {
		args = append(args, t)
	}
	if _, err := r.invoker.Invoke(ctx, "recur.untag", args...); err != nil {
		return err
	}
	r.tags = removeAll(r.tags, tags)
	return nil
}
