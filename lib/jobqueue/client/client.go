// Package client implements ScriptClient, the single point of contact
// between relayq and the server-side queue script.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayq/relayq/lib/jobqueue/logger"
	"github.com/relayq/relayq/lib/jobqueue/traceutil"
	"github.com/relayq/relayq/pkg/telemetry"
)

// Clock supplies the client's notion of "now". Every command sent to the
// script carries the clock's time as a decimal-seconds float, so tests can
// freeze time by injecting a fake Clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// LostLockMatcher reports whether a DomainError's message indicates the
// caller no longer holds the job's lock. Configurable because the exact
// wording is defined by the server-side script, not by relayq.
type LostLockMatcher func(message string) bool

func defaultLostLockMatcher(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range []string{
		"does not own",
		"not owned by",
		"no longer the owner",
		"not currently running",
		"lock",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Config configures a ScriptClient.
type Config struct {
	Log             logger.StandardLogger
	Clock           Clock
	LostLockMatcher LostLockMatcher
	TracerName      string
	MaxRetries      uint
	Backoff         backoff.BackOff
}

// Option modifies a Config before a ScriptClient is constructed.
type Option func(*Config)

func WithLog(l logger.StandardLogger) Option {
	return func(cfg *Config) { cfg.Log = l }
}

func WithClock(c Clock) Option {
	return func(cfg *Config) { cfg.Clock = c }
}

func WithLostLockMatcher(m LostLockMatcher) Option {
	return func(cfg *Config) { cfg.LostLockMatcher = m }
}

// WithMaxRetries bounds how many attempts Invoke makes in total when each
// attempt fails with a TransportError (connection refused, timeout, EOF). Script-level errors
// (DomainError, LostLock) never retry regardless of this setting.
func WithMaxRetries(n uint) Option {
	return func(cfg *Config) { cfg.MaxRetries = n }
}

// WithBackOff overrides the delay strategy between transport-error retries.
// Defaults to an exponential backoff.
func WithBackOff(b backoff.BackOff) Option {
	return func(cfg *Config) { cfg.Backoff = b }
}

// ScriptClient holds a connection to Redis and the sha1 of the loaded
// queue script, and exposes the single invoke(command, now, args...)
// primitive every other relayq component is built on.
type ScriptClient struct {
	redis  redis.UniversalClient
	source string

	mu  sync.RWMutex
	sha string

	clock      Clock
	log        logger.StandardLogger
	lostLock   LostLockMatcher
	tracer     trace.Tracer
	maxRetries uint
	backoff    backoff.BackOff
}

// defaultMaxRetries bounds the transport-error retry loop in Invoke.
const defaultMaxRetries = 3

// New constructs a ScriptClient bound to rdb, loading scriptSource once via
// SCRIPT LOAD. scriptSource is opaque to relayq: it implements the queue
// semantics documented in the server-side script contract.
func New(ctx context.Context, rdb redis.UniversalClient, scriptSource string, opts ...Option) (*ScriptClient, error) {
	cfg := &Config{
		Log:             &logger.DiscardLogger{},
		Clock:           systemClock{},
		LostLockMatcher: defaultLostLockMatcher,
		TracerName:      "relayq.invoke",
		MaxRetries:      defaultMaxRetries,
		Backoff:         backoff.NewExponentialBackOff(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sha, err := rdb.ScriptLoad(ctx, scriptSource).Result()
	if err != nil {
		return nil, &TransportError{Command: "script-load", Err: err}
	}

	return &ScriptClient{
		redis:      rdb,
		source:     scriptSource,
		sha:        sha,
		clock:      cfg.Clock,
		log:        cfg.Log,
		lostLock:   cfg.LostLockMatcher,
		tracer:     telemetry.Tracer(cfg.TracerName),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}, nil
}

// Raw returns the underlying redis client, for the handful of direct key
// reads (qmore:dynamic, qmore:priority, ql:q:<name>-recur) that spec.md
// documents as bypassing the script envelope.
func (c *ScriptClient) Raw() redis.UniversalClient {
	return c.redis
}

// RawSubscriber returns a pub/sub subscriber bound to the underlying
// connection, for exclusive use by listener.Listener.
func (c *ScriptClient) RawSubscriber(ctx context.Context, channels ...string) *redis.PubSub {
	return c.redis.Subscribe(ctx, channels...)
}

// Invoke forwards (command, now_seconds_decimal, args...) to the loaded
// script via EVALSHA, reloading the script body and retrying exactly once
// on NOSCRIPT. A TransportError (connection refused, timeout, and the like)
// is retried with exponential backoff up to MaxRetries attempts; a
// DomainError or LostLock is never retried and surfaces immediately. The
// raw decoded reply is returned as a string; structured data is the
// caller's responsibility to parse.
func (c *ScriptClient) Invoke(ctx context.Context, command string, args ...any) (string, error) {
	ctx, span := traceutil.StartSpan(ctx, c.tracer, "relayq.invoke", trace.WithAttributes(
		attribute.String("relayq.command", command),
	))
	defer span.End()

	return backoff.Retry(ctx, func() (string, error) {
		return c.invokeOnce(ctx, command, args)
	}, backoff.WithBackOff(c.backoff), backoff.WithMaxTries(c.maxRetries))
}

// invokeOnce issues a single EVALSHA attempt, reloading the script body and
// retrying exactly once on NOSCRIPT. A TransportError is returned bare so
// Invoke's backoff.Retry loop treats it as retryable; any other error is
// wrapped in backoff.Permanent so the retry loop gives up immediately.
func (c *ScriptClient) invokeOnce(ctx context.Context, command string, args []any) (string, error) {
	now := c.clock.Now()
	nowRepr := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', -1, 64)

	full := make([]any, 0, len(args)+2)
	full = append(full, command, nowRepr)
	full = append(full, args...)

	c.mu.RLock()
	sha := c.sha
	c.mu.RUnlock()

	res, err := c.redis.EvalSha(ctx, sha, nil, full...).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		if reloadErr := c.reload(ctx); reloadErr != nil {
			return "", reloadErr
		}
		c.mu.RLock()
		sha = c.sha
		c.mu.RUnlock()
		res, err = c.redis.EvalSha(ctx, sha, nil, full...).Result()
	}
	if err != nil {
		wrapped := c.wrapError(command, err)
		if _, ok := wrapped.(*TransportError); ok {
			return "", wrapped
		}
		return "", backoff.Permanent(wrapped)
	}

	return toString(res), nil
}

func (c *ScriptClient) reload(ctx context.Context) error {
	sha, err := c.redis.ScriptLoad(ctx, c.source).Result()
	if err != nil {
		return &TransportError{Command: "script-load", Err: err}
	}
	c.mu.Lock()
	c.sha = sha
	c.mu.Unlock()
	return nil
}

// wrapError classifies err as either a script-side DomainError (a reply
// error from Redis) or a connection-level TransportError.
func (c *ScriptClient) wrapError(command string, err error) error {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return &TransportError{Command: command, Err: err}
	}

	domain := &DomainError{Command: command, Message: redisErr.Error()}
	if c.lostLock(domain.Message) {
		return &LostLock{DomainError: domain}
	}
	return domain
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
