package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Throttle is a named concurrency limiter: at most Maximum jids may hold
// a lock on it at once. Every accessor issues a fresh Invoke call rather
// than caching server state, matching original_source/reqless/throttle.py
// (and qless/throttle.py before it), which never caches either.
type Throttle struct {
	invoker Invoker
	name    string
}

// NewThrottle binds a Throttle handle to name. name is not validated or
// created here — throttles spring into existence the first time a job
// references them and are torn down explicitly via Delete.
func NewThrottle(invoker Invoker, name string) *Throttle {
	return &Throttle{invoker: invoker, name: name}
}

func (t *Throttle) Name() string { return t.name }

// throttleState mirrors the JSON document throttle.get returns.
type throttleState struct {
	Maximum    int `json:"maximum"`
	Expiration int `json:"expiration"`
}

func (t *Throttle) get(ctx context.Context) (throttleState, error) {
	raw, err := t.invoker.Invoke(ctx, "throttle.get", t.name)
	if err != nil {
		return throttleState{}, err
	}
	if raw == "" {
		return throttleState{}, nil
	}
	var state throttleState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return throttleState{}, fmt.Errorf("job: decode throttle state %q: %w", raw, err)
	}
	return state, nil
}

// Maximum is the concurrent-holder cap currently configured, or 0 if the
// throttle has never been configured (unlimited).
func (t *Throttle) Maximum(ctx context.Context) (int, error) {
	state, err := t.get(ctx)
	if err != nil {
		return 0, err
	}
	return state.Maximum, nil
}

// Expiration is the lock TTL (seconds) applied the last time SetMaximum
// ran.
func (t *Throttle) Expiration(ctx context.Context) (int, error) {
	state, err := t.get(ctx)
	if err != nil {
		return 0, err
	}
	return state.Expiration, nil
}

// SetMaximum reconfigures this throttle. maximum of 0 leaves the current
// maximum unchanged (mirrors the Python client passing None through).
func (t *Throttle) SetMaximum(ctx context.Context, maximum, expiration int) error {
	if maximum == 0 {
		current, err := t.Maximum(ctx)
		if err != nil {
			return err
		}
		maximum = current
	}
	_, err := t.invoker.Invoke(ctx, "throttle.set", t.name, maximum, expiration)
	return err
}

// Locks returns the jids currently holding this throttle.
func (t *Throttle) Locks(ctx context.Context) ([]string, error) {
	raw, err := t.invoker.Invoke(ctx, "throttle.locks", t.name)
	if err != nil {
		return nil, err
	}
	return decodeStringList(raw)
}

// Pending returns the jids waiting for a lock on this throttle.
func (t *Throttle) Pending(ctx context.Context) ([]string, error) {
	raw, err := t.invoker.Invoke(ctx, "throttle.pending", t.name)
	if err != nil {
		return nil, err
	}
	return decodeStringList(raw)
}

// TTL is the number of seconds remaining before this throttle's locks
// expire and are released automatically.
func (t *Throttle) TTL(ctx context.Context) (int, error) {
	raw, err := t.invoker.Invoke(ctx, "throttle.ttl", t.name)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("job: decode throttle ttl %q: %w", raw, err)
	}
	return n, nil
}

// Delete removes this throttle's configuration and releases every lock
// and pending wait it holds.
func (t *Throttle) Delete(ctx context.Context) error {
	_, err := t.invoker.Invoke(ctx, "throttle.delete", t.name)
	return err
}

func decodeStringList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list flexibleStringList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("job: decode throttle list %q: %w", raw, err)
	}
	return []string(list), nil
}
