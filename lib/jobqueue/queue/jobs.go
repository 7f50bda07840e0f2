package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relayq/relayq/lib/jobqueue/job"
)

const defaultListCount = 25

// Jobs is a proxy for the jid listings scoped to one queue: depends,
// recurring, running, scheduled, stalled.
type Jobs struct {
	name    string
	invoker job.Invoker
}

func (q *Queue) Jobs() *Jobs {
	return &Jobs{name: q.name, invoker: q.invoker}
}

func (j *Jobs) list(ctx context.Context, kind string, offset, count int) ([]string, error) {
	if count <= 0 {
		count = defaultListCount
	}
	raw, err := j.invoker.Invoke(ctx, "jobs", kind, j.name, offset, count)
	if err != nil {
		return nil, err
	}
	var jids []string
	if err := json.Unmarshal([]byte(raw), &jids); err != nil {
		return nil, fmt.Errorf("queue: decode %s jids %q: %w", kind, raw, err)
	}
	return jids, nil
}

func (j *Jobs) Depends(ctx context.Context, offset, count int) ([]string, error) {
	return j.list(ctx, "depends", offset, count)
}

func (j *Jobs) Recurring(ctx context.Context, offset, count int) ([]string, error) {
	return j.list(ctx, "recurring", offset, count)
}

func (j *Jobs) Running(ctx context.Context, offset, count int) ([]string, error) {
	return j.list(ctx, "running", offset, count)
}

func (j *Jobs) Scheduled(ctx context.Context, offset, count int) ([]string, error) {
	return j.list(ctx, "scheduled", offset, count)
}

func (j *Jobs) Stalled(ctx context.Context, offset, count int) ([]string, error) {
	return j.list(ctx, "stalled", offset, count)
}
