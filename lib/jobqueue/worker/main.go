package worker

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
)

// MainWorker is a SerialWorker that additionally owns process-level
// signal handling and, because it runs job.process() on what is treated
// as relayq's single dedicated worker goroutine, can forcibly cancel that
// goroutine's in-flight job from the listener goroutine. Grounded on
// main_worker.py and signals.py.
type MainWorker struct {
	*SerialWorker

	cancelCurrent atomic.Pointer[jobCancel]
}

type jobCancel struct {
	jid    string
	cancel context.CancelFunc
}

// NewMainWorker constructs a MainWorker over the same parameters as
// NewSerialWorker.
func NewMainWorker(ctx context.Context, name string, identifiers []string, invoker job.Invoker, sub listener.Subscriber, imp *importer.Registry, opts ...Option) (*MainWorker, error) {
	serial, err := NewSerialWorker(ctx, name, identifiers, invoker, sub, imp, opts...)
	if err != nil {
		return nil, err
	}
	w := &MainWorker{SerialWorker: serial}
	w.halt = w.HaltJobProcessing
	w.processFunc = w.processWithCancel
	return w, nil
}

// HaltJobProcessing cancels the context of whichever job this worker is
// currently processing, if jid matches it. Unlike SerialWorker's no-op,
// MainWorker's single processing goroutine is the one the rest of relayq
// treats as authoritative, so ownership loss can be acted on directly
// instead of waiting on the job's own heartbeat to notice — the
// intentional asymmetry spec.md §9(c) calls out. main_worker.py achieves
// the equivalent by interrupting the main thread only when called from a
// non-main thread; relayq's translation is a per-job CancelFunc the
// listener goroutine is free to call since cancellation is inherently
// goroutine-safe.
func (w *MainWorker) HaltJobProcessing(jid string) {
	if jc := w.cancelCurrent.Load(); jc != nil && jc.jid == jid {
		jc.cancel()
	}
}

// Run installs QUIT/USR1/USR2-equivalent signal handling before delegating
// to SerialWorker's run loop. Go has no SIGUSR2 "enter an interactive
// debugger" equivalent in the standard toolchain, so USR2 is translated to
// dumping a full goroutine stack trace alongside USR1's single-goroutine
// trace rather than dropping the signal entirely.
func (w *MainWorker) Run(ctx context.Context) error {
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

	return w.SerialWorker.Run(ctx)
}

func (w *MainWorker) processWithCancel(ctx context.Context, j *job.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.cancelCurrent.Store(&jobCancel{jid: j.Jid(), cancel: cancel})
	defer w.cancelCurrent.Store(nil)

	w.SerialWorker.defaultProcessOne(jobCtx, j)
}
