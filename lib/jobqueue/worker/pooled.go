package worker

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
	"github.com/relayq/relayq/lib/jobqueue/sandbox"
)

// WithPoolSize overrides the number of jobs PooledWorker processes
// concurrently. Default is 10, matching greenlet.py's "greenlets" kwarg
// default.
func WithPoolSize(n int) Option {
	return func(c *Config) { c.poolSize = n }
}

const defaultPoolSize = 10

// PooledWorker runs up to poolSize jobs concurrently on a bounded
// goroutine pool, each with its own rented sandbox directory. Grounded on
// greenlet.py's GeventWorker; gevent's single-OS-thread greenlet pool
// becomes a semaphore-gated goroutine pool since Go schedules goroutines
// across real OS threads and has no GIL-equivalent cooperative-yield
// guarantee to lean on.
type PooledWorker struct {
	*BaseWorker
	sem  *semaphore.Weighted
	ring *sandbox.Ring

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewPooledWorker constructs a PooledWorker. WithPoolSize sets the
// concurrency bound (and the size of the sandbox ring); WithSandboxPath
// sets the root the ring's slot directories are created under.
func NewPooledWorker(ctx context.Context, name string, identifiers []string, invoker job.Invoker, sub listener.Subscriber, imp *importer.Registry, opts ...Option) (*PooledWorker, error) {
	cfg := newConfig(name, identifiers, invoker, sub, imp, opts)
	if cfg.poolSize <= 0 {
		cfg.poolSize = defaultPoolSize
	}
	if cfg.sandboxPath == "" {
		cfg.sandboxPath = defaultSandboxRoot()
	}

	w := &PooledWorker{
		sem:     semaphore.NewWeighted(int64(cfg.poolSize)),
		ring:    sandbox.NewRing(cfg.sandboxPath, name, "pool", cfg.poolSize),
		cancels: make(map[string]context.CancelFunc),
	}
	base, err := newBase(ctx, cfg, w.HaltJobProcessing)
	if err != nil {
		return nil, err
	}
	w.BaseWorker = base
	return w, nil
}

// HaltJobProcessing cancels the goroutine processing jid, if any is still
// running it. Grounded on GeventWorker.kill.
func (w *PooledWorker) HaltJobProcessing(jid string) {
	w.mu.Lock()
	cancel, ok := w.cancels[jid]
	w.mu.Unlock()
	if ok {
		w.log.Warnf("worker %s: lost ownership of %s", w.name, jid)
		cancel()
	}
}

// Run installs QUIT/USR1/USR2 signal handling, then dispatches jobs onto
// the bounded pool until Stop is called or the context is canceled, at
// which point it waits for every in-flight job to finish before
// returning. Grounded on GeventWorker.run.
func (w *PooledWorker) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGQUIT)
	defer stop()
	go func() {
		<-sigCtx.Done()
		w.Stop()
	}()

	usr := make(chan os.Signal, 1)
	signal.Notify(usr, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(usr)
	go func() {
		for sig := range usr {
			switch sig {
			case syscall.SIGUSR1:
				w.log.Warnf("worker %s: signaled stack trace:\n%s", w.name, debug.Stack())
			case syscall.SIGUSR2:
				w.log.Warnf("worker %s: signaled full goroutine dump:\n%s", w.name, fullGoroutineDump())
			}
		}
	}()

	return w.RunListener(ctx, w.dispatchLoop)
}

func (w *PooledWorker) dispatchLoop(ctx context.Context) error {
	defer w.wg.Wait()

	for {
		if w.ShouldStop() {
			return nil
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}

		j, err := w.Next(ctx)
		if err != nil {
			w.sem.Release(1)
			return err
		}
		if j == nil {
			w.sem.Release(1)
			if w.ShouldStop() {
				return nil
			}
			w.log.Debugf("worker %s: sleeping for %s", w.name, w.interval)
			select {
			case <-time.After(w.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		w.wg.Add(1)
		go func(j *job.Job) {
			defer w.wg.Done()
			defer w.sem.Release(1)
			w.process(ctx, j)
		}(j)
	}
}

func (w *PooledWorker) process(parent context.Context, j *job.Job) {
	path, release, ok := w.ring.Rent()
	if !ok {
		w.log.Errorf("worker %s: no sandbox slot free for %s", w.name, j.Jid())
		return
	}
	defer func() {
		if err := release(); err != nil {
			w.log.Warnf("worker %s: release sandbox %s: %v", w.name, path, err)
		}
	}()
	j.SetSandbox(path)

	jobCtx, cancel := context.WithCancel(parent)
	defer cancel()
	w.mu.Lock()
	w.cancels[j.Jid()] = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.cancels, j.Jid())
		w.mu.Unlock()
	}()

	w.metrics.recordActiveDelta(jobCtx, j.QueueName(), j.KlassName(), 1)
	defer w.metrics.recordActiveDelta(jobCtx, j.QueueName(), j.KlassName(), -1)

	start := time.Now()
	status := "ok"
	if err := j.Process(jobCtx); err != nil {
		status = "error"
		w.metrics.recordFailure(jobCtx, j.QueueName(), j.KlassName())
		w.log.Errorw("worker job processing failed", "worker", w.name, "jid", j.Jid(), "error", err)
	}
	w.metrics.recordDuration(jobCtx, j.QueueName(), j.KlassName(), status, time.Since(start))
}
