// Package worker implements the five worker shapes relayq ships:
// BaseWorker (the shared dispatch/listener machinery, never run directly),
// SerialWorker, MainWorker, ForkingWorker, and PooledWorker. All five are
// grounded command-for-command on original_source/reqless/workers/*.py;
// the concurrency model each one implements is described in spec.md §5.
package worker

import (
	"time"

	"github.com/relayq/relayq/lib/jobqueue/importer"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/listener"
	"github.com/relayq/relayq/lib/jobqueue/logger"
	"github.com/relayq/relayq/lib/jobqueue/resolver"
	"github.com/relayq/relayq/pkg/telemetry"
)

// DefaultInterval is the idle-poll sleep a worker uses between empty
// rounds when no WithInterval option is given.
const DefaultInterval = 60 * time.Second

const defaultInterval = DefaultInterval

// ResumeMode captures the constructor's tri-state "resume" argument from
// reqless's BaseWorker.__init__: nothing to resume (the zero value),
// rediscover every resumable job from the server (ResumeAll), or a
// caller-supplied slice of jobs already known to be resumable.
type ResumeMode struct {
	all  bool
	jobs []*job.Job
}

// ResumeNone is the default: start with nothing to resume.
func ResumeNone() ResumeMode { return ResumeMode{} }

// ResumeAll asks the constructor to compute resumable() itself.
func ResumeAll() ResumeMode { return ResumeMode{all: true} }

// ResumeJobs supplies an already-known set of resumable jobs, skipping the
// resumable() round-trip (used by ForkingWorker to hand each child its
// partition).
func ResumeJobs(jobs []*job.Job) ResumeMode { return ResumeMode{jobs: jobs} }

// Config is the shared construction contract every worker variant builds
// on, mirroring the kwargs BaseWorker.__init__ saves for re-use when
// spawning sub-workers (ForkingWorker.spawn passes self.kwargs straight
// through).
type Config struct {
	WorkerName  string
	Identifiers []string
	Resolver    resolver.QueueIdentifiersTransformer // nil => resolver.Identity
	Interval    time.Duration
	Resume      ResumeMode

	Invoker  job.Invoker
	Sub      listener.Subscriber
	Importer *importer.Registry
	Log      logger.StandardLogger
	Tel      *telemetry.Telemetry

	// sandboxPath, workerCount, poolSize, and childCmd are
	// variant-specific knobs set via their own With* options
	// (WithSandboxPath, WithWorkerCount, WithPoolSize, WithChildCommand)
	// and consumed only by the constructor that cares about them.
	// childKlass has no option that sets it.
	sandboxPath string
	workerCount int
	poolSize    int
	childCmd    ChildCommandFunc
	childKlass  string
}

// Option mutates a Config before a worker is constructed.
type Option func(*Config)

func WithResolver(r resolver.QueueIdentifiersTransformer) Option {
	return func(c *Config) { c.Resolver = r }
}

func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

func WithResume(r ResumeMode) Option {
	return func(c *Config) { c.Resume = r }
}

func WithLog(l logger.StandardLogger) Option {
	return func(c *Config) { c.Log = l }
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Config) { c.Tel = t }
}

func newConfig(name string, identifiers []string, invoker job.Invoker, sub listener.Subscriber, imp *importer.Registry, opts []Option) Config {
	cfg := Config{
		WorkerName:  name,
		Identifiers: append([]string{}, identifiers...),
		Interval:    defaultInterval,
		Invoker:     invoker,
		Sub:         sub,
		Importer:    imp,
		Log:         &logger.DiscardLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
