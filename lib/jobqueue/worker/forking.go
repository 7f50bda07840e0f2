package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
	"github.com/relayq/relayq/lib/jobqueue/sandbox"
)

// ChildCommandFunc builds the *exec.Cmd used to launch the child worker
// running in slot, rooted at sandboxPath, responsible for resuming jids.
// The default re-invokes the current binary with flags a relayq worker
// command is expected to understand.
type ChildCommandFunc func(slot int, sandboxPath string, jids []string) *exec.Cmd

// WithWorkerCount overrides the number of child processes ForkingWorker
// supervises. Default is the host's logical CPU count, matching
// forking.py's NUM_CPUS fallback.
func WithWorkerCount(n int) Option {
	return func(c *Config) { c.workerCount = n }
}

// WithChildCommand overrides how ForkingWorker launches each child.
func WithChildCommand(fn ChildCommandFunc) Option {
	return func(c *Config) { c.childCmd = fn }
}

func hostCPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func defaultChildCommand(workerName string) ChildCommandFunc {
	return func(slot int, sandboxPath string, jids []string) *exec.Cmd {
		args := []string{
			"--relayq-child",
			"--relayq-worker-name", fmt.Sprintf("%s-%d", workerName, slot),
			"--relayq-sandbox", sandboxPath,
		}
		if len(jids) > 0 {
			args = append(args, "--relayq-resume-jids", strings.Join(jids, ","))
		}
		cmd := exec.Command(os.Args[0], args...)
		cmd.Dir = sandboxPath
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd
	}
}

type childExit struct {
	pid  int
	slot int
	err  error
}

// ForkingWorker supervises workerCount child processes, each a full
// worker (by default a relayq-worker --relayq-child re-invocation)
// bound to its own sandbox directory and a round-robin share of the
// resumable jobs found at startup. Grounded on forking.py; Go has no
// fork(), so "child process" is realized as a genuine OS subprocess
// (os/exec) rather than a goroutine, preserving the "no shared mutable
// state between siblings" guarantee spec.md §5 requires of this worker
// shape.
type ForkingWorker struct {
	*BaseWorker

	workerCount int
	sandboxRoot string
	childCmd    ChildCommandFunc

	mu       sync.Mutex
	children map[int]int // pid -> slot
	cmds     map[int]*exec.Cmd

	exits chan childExit
}

// NewForkingWorker constructs a ForkingWorker. Pass WithResume(ResumeAll())
// to have it compute the resumable backlog to partition across children;
// with no resume configured, children start with nothing to resume. The
// sandbox root each slot's directory is created under defaults the same
// way SerialWorker's does and can be overridden with WithSandboxPath.
func NewForkingWorker(ctx context.Context, name string, identifiers []string, invoker job.Invoker, sub listener.Subscriber, imp *importer.Registry, opts ...Option) (*ForkingWorker, error) {
	cfg := newConfig(name, identifiers, invoker, sub, imp, opts)
	if cfg.workerCount <= 0 {
		cfg.workerCount = hostCPUCount()
	}
	if cfg.childCmd == nil {
		cfg.childCmd = defaultChildCommand(name)
	}
	if cfg.sandboxPath == "" {
		cfg.sandboxPath = defaultSandboxRoot()
	}

	base, err := newBase(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}

	return &ForkingWorker{
		BaseWorker:  base,
		workerCount: cfg.workerCount,
		sandboxRoot: cfg.sandboxPath,
		childCmd:    cfg.childCmd,
		children:    make(map[int]int),
		cmds:        make(map[int]*exec.Cmd),
		exits:       make(chan childExit, cfg.workerCount*2),
	}, nil
}

// divideJobs partitions jobs into count round-robin groups (max size
// difference 1), matching forking.py's util.divide (a zip_longest-based
// round robin with the same distribution).
func divideJobs(jobs []*job.Job, count int) [][]*job.Job {
	groups := make([][]*job.Job, count)
	for i, j := range jobs {
		slot := i % count
		groups[slot] = append(groups[slot], j)
	}
	return groups
}

func jidsOf(jobs []*job.Job) []string {
	jids := make([]string, len(jobs))
	for i, j := range jobs {
		jids[i] = j.Jid()
	}
	return jids
}

// Run spawns workerCount children, each with its own sandbox and round-
// robin partition of the resumable backlog, then supervises them: when a
// child exits and this worker is not shutting down, a replacement is
// spawned in the same sandbox. Run installs TERM/INT/QUIT handling that
// shuts the whole group down.
func (w *ForkingWorker) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	groups := divideJobs(w.resumed, w.workerCount)
	for slot := 0; slot < w.workerCount; slot++ {
		if err := w.spawn(slot, jidsOf(groups[slot])); err != nil {
			return fmt.Errorf("worker %s: spawn slot %d: %w", w.name, slot, err)
		}
	}

	return w.supervise(sigCtx)
}

func (w *ForkingWorker) spawn(slot int, jids []string) error {
	path := sandbox.SlotPath(w.sandboxRoot, w.name, slot)
	if _, err := sandbox.Acquire(path); err != nil {
		return err
	}

	cmd := w.childCmd(slot, path, jids)
	if err := cmd.Start(); err != nil {
		return err
	}

	pid := cmd.Process.Pid
	w.log.Infow("spawned child worker", "worker", w.name, "pid", pid, "slot", slot)

	w.mu.Lock()
	w.children[pid] = slot
	w.cmds[pid] = cmd
	w.mu.Unlock()

	go func() {
		err := cmd.Wait()
		w.exits <- childExit{pid: pid, slot: slot, err: err}
	}()
	return nil
}

func (w *ForkingWorker) supervise(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.Shutdown(os.Interrupt)
			return ctx.Err()
		case ev := <-w.exits:
			w.mu.Lock()
			delete(w.children, ev.pid)
			delete(w.cmds, ev.pid)
			remaining := len(w.children)
			w.mu.Unlock()

			w.log.Warnf("worker %s: child %d (slot %d) exited: %v", w.name, ev.pid, ev.slot, ev.err)

			if w.ShouldStop() {
				if remaining == 0 {
					return nil
				}
				continue
			}
			if err := w.spawn(ev.slot, nil); err != nil {
				w.log.Errorf("worker %s: respawn slot %d: %v", w.name, ev.slot, err)
			}
		}
	}
}

// Shutdown sends sig to every known child, waits for each to exit, then
// forcibly kills any survivors after a grace period. Grounded on
// forking.py's stop(): signal, wait, then SIGKILL stragglers.
func (w *ForkingWorker) Shutdown(sig os.Signal) {
	w.Stop()

	w.mu.Lock()
	pids := make([]int, 0, len(w.children))
	for pid := range w.children {
		pids = append(pids, pid)
	}
	w.mu.Unlock()

	for _, pid := range pids {
		w.log.Warnf("worker %s: stopping %d", w.name, pid)
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(sig)
		}
	}

	deadline := time.After(10 * time.Second)
	remaining := len(pids)
	for remaining > 0 {
		select {
		case ev := <-w.exits:
			w.mu.Lock()
			delete(w.children, ev.pid)
			delete(w.cmds, ev.pid)
			w.mu.Unlock()
			remaining--
		case <-deadline:
			w.killSurvivors()
			return
		}
	}
}

func (w *ForkingWorker) killSurvivors() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for pid := range w.children {
		w.log.Errorf("worker %s: force-killing %d", w.name, pid)
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Kill()
		}
	}
}
