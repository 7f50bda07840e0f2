package worker

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
	"github.com/relayq/relayq/lib/jobqueue/sandbox"
)

func defaultSandboxRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "relayq-workers")
}

// WithSandboxPath overrides the single working directory SerialWorker (and
// MainWorker) wipes and recreates around every job.process() call. Default
// is "<cwd>/relayq-workers", matching serial_worker.py's default.
func WithSandboxPath(path string) Option {
	return func(c *Config) {
		if c.sandboxPath == "" {
			c.sandboxPath = path
		}
	}
}

// SerialWorker pops and processes one job at a time on a single goroutine,
// relying on a background listener goroutine only to observe ownership
// loss, never to interrupt. Grounded on serial_worker.py.
type SerialWorker struct {
	*BaseWorker
	sandboxPath string
	currentJid  string

	// processFunc is the strategy hook MainWorker overrides after
	// construction (Go has no virtual dispatch through an embedded
	// struct) to wrap each job in a cancelable context. Defaults to
	// w.defaultProcessOne.
	processFunc func(ctx context.Context, j *job.Job)
}

// NewSerialWorker constructs a SerialWorker. identifiers is either a fixed
// list of queue names (wrapped in resolver.Identity) or, via WithResolver,
// a full dynamic-mapping/priority pipeline.
func NewSerialWorker(ctx context.Context, name string, identifiers []string, invoker job.Invoker, sub listener.Subscriber, imp *importer.Registry, opts ...Option) (*SerialWorker, error) {
	cfg := newConfig(name, identifiers, invoker, sub, imp, opts)
	if cfg.sandboxPath == "" {
		cfg.sandboxPath = defaultSandboxRoot()
	}

	w := &SerialWorker{sandboxPath: cfg.sandboxPath}
	w.processFunc = w.defaultProcessOne
	base, err := newBase(ctx, cfg, w.HaltJobProcessing)
	if err != nil {
		return nil, err
	}
	w.BaseWorker = base
	return w, nil
}

// HaltJobProcessing is a deliberate no-op: the listener goroutine and the
// processing goroutine are different goroutines of the same process, and
// forcibly halting the processing goroutine from here is unsafe. The
// contract instead relies on the running job's own Heartbeat calls to
// observe the lost lock (spec.md §9(c); serial_worker.py's
// halt_job_processing docstring says the same). This asymmetry with
// MainWorker.HaltJobProcessing is intentional, not a gap to fix.
func (w *SerialWorker) HaltJobProcessing(jid string) {}

// Run pops and processes jobs serially until Stop is called, sleeping
// Interval() between empty rounds. Grounded on SerialWorker.run.
func (w *SerialWorker) Run(ctx context.Context) error {
	return w.RunListener(ctx, w.runLoop)
}

func (w *SerialWorker) runLoop(ctx context.Context) error {
	for {
		j, err := w.Next(ctx)
		if err != nil {
			return err
		}

		if j == nil {
			w.currentJid = ""
			w.log.Debugf("worker %s: sleeping for %s", w.name, w.interval)
			select {
			case <-time.After(w.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			w.currentJid = j.Jid()
			w.log.Infow("worker processing job", "worker", w.name, "jid", j.Jid(), "klass", j.KlassName())
			w.processFunc(ctx, j)
		}

		if w.ShouldStop() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (w *SerialWorker) defaultProcessOne(ctx context.Context, j *job.Job) {
	release, err := sandbox.Acquire(w.sandboxPath)
	if err != nil {
		w.log.Errorf("worker %s: sandbox %s: %v", w.name, w.sandboxPath, err)
		return
	}
	defer func() {
		if err := release(); err != nil {
			w.log.Warnf("worker %s: release sandbox %s: %v", w.name, w.sandboxPath, err)
		}
	}()

	j.SetSandbox(w.sandboxPath)

	w.metrics.recordActiveDelta(ctx, j.QueueName(), j.KlassName(), 1)
	start := time.Now()
	status := "ok"
	if err := j.Process(ctx); err != nil {
		status = "error"
		w.metrics.recordFailure(ctx, j.QueueName(), j.KlassName())
		w.log.Errorw("worker job processing failed", "worker", w.name, "jid", j.Jid(), "error", err)
	}
	w.metrics.recordDuration(ctx, j.QueueName(), j.KlassName(), status, time.Since(start))
	w.metrics.recordActiveDelta(ctx, j.QueueName(), j.KlassName(), -1)
}
