package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
	"github.com/relayq/relayq/lib/jobqueue/logger"
	"github.com/relayq/relayq/lib/jobqueue/queue"
	"github.com/relayq/relayq/lib/jobqueue/resolver"
)

// HaltFunc is the abstract `halt_job_processing(jid)` every concrete
// worker supplies: how it interrupts (or declines to interrupt) a job
// whose ownership was just lost. Grounded on base_worker.py's
// NotImplementedError contract.
type HaltFunc func(jid string)

// BaseWorker holds the machinery spec.md §4.7 assigns to every worker
// variant: queue resolution, the resumable-job backlog, the ownership-loss
// listener, and the shutdown flag. It is never run on its own; SerialWorker,
// MainWorker, and PooledWorker embed it and supply Run plus a HaltFunc.
type BaseWorker struct {
	name        string
	identifiers []string
	resolver    resolver.QueueIdentifiersTransformer
	interval    time.Duration

	invoker job.Invoker
	imp     *importer.Registry
	sub     listener.Subscriber
	log     logger.StandardLogger
	metrics *metricsRecorder

	halt HaltFunc

	mu     sync.Mutex
	queues map[string]*queue.Queue

	resumed   []*job.Job
	resumeIdx int

	roundNames []string
	roundIdx   int
	roundSeen  bool

	shutdown atomic.Bool
}

// newBase constructs the shared BaseWorker state from cfg, computing the
// resumable backlog synchronously (exactly as reqless's constructor does)
// when cfg.Resume asks for it.
func newBase(ctx context.Context, cfg Config, halt HaltFunc) (*BaseWorker, error) {
	res := cfg.Resolver
	if res == nil {
		res = resolver.NewTransformingQueueResolver(resolver.Identity{})
	}

	bw := &BaseWorker{
		name:        cfg.WorkerName,
		identifiers: cfg.Identifiers,
		resolver:    res,
		interval:    cfg.Interval,
		invoker:     cfg.Invoker,
		imp:         cfg.Importer,
		sub:         cfg.Sub,
		log:         cfg.Log,
		metrics:     newMetrics(cfg.Tel),
		halt:        halt,
		queues:      make(map[string]*queue.Queue),
	}

	switch {
	case cfg.Resume.all:
		resumed, err := bw.resumable(ctx)
		if err != nil {
			return nil, fmt.Errorf("worker: resumable: %w", err)
		}
		bw.resumed = resumed
	case len(cfg.Resume.jobs) > 0:
		bw.resumed = cfg.Resume.jobs
	}

	return bw, nil
}

// Interval is the configured idle-poll sleep duration.
func (b *BaseWorker) Interval() time.Duration { return b.interval }

// Name is the worker identity this instance claims jobs under.
func (b *BaseWorker) Name() string { return b.name }

func (b *BaseWorker) resolve(ctx context.Context) ([]string, error) {
	return b.resolver.Transform(ctx, b.identifiers)
}

// resumable finds every job the server still lists as owned by this
// worker name whose queue is among the resolver's current output.
// Grounded on BaseWorker.resumable in base_worker.py: "workers" for the
// jid list, then "multiget" for the job bodies.
func (b *BaseWorker) resumable(ctx context.Context) ([]*job.Job, error) {
	raw, err := b.invoker.Invoke(ctx, "workers", b.name)
	if err != nil {
		return nil, err
	}
	var info struct {
		Jobs []string `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("worker: decode workers reply %q: %w", raw, err)
	}
	if len(info.Jobs) == 0 {
		return nil, nil
	}

	jidArgs := make([]any, len(info.Jobs))
	for i, jid := range info.Jobs {
		jidArgs[i] = jid
	}
	multiRaw, err := b.invoker.Invoke(ctx, "multiget", jidArgs...)
	if err != nil {
		return nil, err
	}
	jobs, err := job.DecodeList(b.invoker, b.imp, b.log, multiRaw)
	if err != nil {
		return nil, err
	}

	names, err := b.resolve(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	filtered := jobs[:0]
	for _, j := range jobs {
		if known[j.QueueName()] {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

func (b *BaseWorker) queueFor(name string) *queue.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = queue.New(name, b.invoker, b.name, b.imp, b.log)
		b.queues[name] = q
	}
	return q
}

// Next produces the next job in the sequence base_worker.py's jobs()
// generator describes: every still-heartbeatable resumed job first (one
// whose heartbeat raises a lost lock is dropped silently), then an
// endless round-robin over the resolved queues, popping at most one job
// per queue per round. Next returns (nil, nil) once per round that
// produced nothing — the caller's cue to sleep — and resumes a fresh
// round on the following call.
func (b *BaseWorker) Next(ctx context.Context) (*job.Job, error) {
	for b.resumeIdx < len(b.resumed) {
		j := b.resumed[b.resumeIdx]
		b.resumeIdx++
		if _, err := j.Heartbeat(ctx); err != nil {
			var lost *client.LostLock
			if errors.As(err, &lost) {
				b.log.Warnf("worker %s: cannot resume %s: %v", b.name, j.Jid(), err)
				continue
			}
			return nil, err
		}
		return j, nil
	}

	for {
		if b.roundNames == nil {
			names, err := b.resolve(ctx)
			if err != nil {
				return nil, err
			}
			if len(names) == 0 {
				return nil, nil
			}
			b.roundNames = names
			b.roundIdx = 0
			b.roundSeen = false
		}

		for b.roundIdx < len(b.roundNames) {
			name := b.roundNames[b.roundIdx]
			b.roundIdx++
			popped, err := b.queueFor(name).PopOne(ctx)
			if err != nil {
				return nil, err
			}
			if popped != nil {
				b.roundSeen = true
				return popped, nil
			}
		}

		seen := b.roundSeen
		b.roundNames = nil
		if !seen {
			return nil, nil
		}
	}
}

// RunListener subscribes to this worker's ownership channel
// (ql:w:<name>), runs body while every inbound cancel/lock-lost/put
// notice is dispatched to HaltFunc, then unsubscribes and joins before
// returning — the Go shape of base_worker.py's listener() context
// manager.
func (b *BaseWorker) RunListener(ctx context.Context, body func(ctx context.Context) error) error {
	l := listener.New(b.sub, []string{"ql:w:" + b.name}, b.log)
	msgs, err := l.Listen(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			b.handleOwnershipEvent(msg.Data)
		}
	}()

	if err := l.WaitUntilListening(ctx); err != nil {
		_ = l.Unlisten()
		<-done
		return err
	}

	bodyErr := body(ctx)

	_ = l.Unlisten()
	<-done
	return bodyErr
}

func (b *BaseWorker) handleOwnershipEvent(payload string) {
	var evt struct {
		Event string `json:"event"`
		Jid   string `json:"jid"`
	}
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.log.Warnf("worker %s: malformed ownership event %q: %v", b.name, payload, err)
		return
	}
	switch evt.Event {
	case "canceled", "lock_lost", "put":
		if b.halt != nil {
			b.halt(evt.Jid)
		}
	}
}

// Stop marks this worker for shutdown; run loops observe it between jobs,
// never mid-job, per spec.md §5's cancellation contract.
func (b *BaseWorker) Stop() { b.shutdown.Store(true) }

// ShouldStop reports the shutdown flag Stop sets.
func (b *BaseWorker) ShouldStop() bool { return b.shutdown.Load() }
