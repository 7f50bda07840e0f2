package client

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// fakeUniversalClient overrides only the handful of redis.UniversalClient
// methods ScriptClient actually calls; every other method panics through
// the embedded nil interface if exercised, which a correct test never
// triggers.
type fakeUniversalClient struct {
	redis.UniversalClient
	evalShaReply any
	evalShaErr   error
	lastArgs     []any

	// noscriptOnce, when set, makes the first EvalSha call fail with
	// NOSCRIPT; every later call returns evalShaReply/evalShaErr as usual.
	noscriptOnce     bool
	evalShaCallCount int
	scriptLoadCount  int
}

// fakeRedisError implements redis.Error's marker interface so
// redis.HasErrorPrefix and ScriptClient.wrapError classify it the way a
// real scripting-error reply from Redis would be classified.
type fakeRedisError string

func (e fakeRedisError) Error() string { return string(e) }
func (e fakeRedisError) RedisError()   {}

func (f *fakeUniversalClient) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	f.scriptLoadCount++
	return redis.NewStringResult("deadbeef", nil)
}

func (f *fakeUniversalClient) EvalSha(_ context.Context, _ string, _ []string, args ...any) *redis.Cmd {
	f.lastArgs = args
	f.evalShaCallCount++
	if f.noscriptOnce && f.evalShaCallCount == 1 {
		return redis.NewCmdResult(nil, fakeRedisError("NOSCRIPT No matching script. Please use EVAL."))
	}
	return redis.NewCmdResult(f.evalShaReply, f.evalShaErr)
}

func newTestClient(t *testing.T, reply any, err error) (*ScriptClient, *fakeUniversalClient) {
	t.Helper()
	rdb := &fakeUniversalClient{evalShaReply: reply, evalShaErr: err}
	c, clientErr := New(context.Background(), rdb, "-- test script --")
	if clientErr != nil {
		t.Fatalf("New() error = %v", clientErr)
	}
	return c, rdb
}

func TestConfigAllDecodesReply(t *testing.T) {
	c, rdb := newTestClient(t, `{"heartbeat":"60","grace-period":"10"}`, nil)

	all, err := c.ConfigAll(context.Background())
	if err != nil {
		t.Fatalf("ConfigAll() error = %v", err)
	}
	if all["heartbeat"] != "60" || all["grace-period"] != "10" {
		t.Fatalf("ConfigAll() = %v, want heartbeat=60 grace-period=10", all)
	}
	if rdb.lastArgs[0] != "config.get" {
		t.Fatalf("command = %v, want config.get", rdb.lastArgs[0])
	}
}

func TestConfigGetReturnsUnsetWhenEmpty(t *testing.T) {
	c, _ := newTestClient(t, "", nil)

	value, ok, err := c.ConfigGet(context.Background(), "heartbeat")
	if err != nil {
		t.Fatalf("ConfigGet() error = %v", err)
	}
	if ok {
		t.Fatalf("ConfigGet() ok = true, value = %q, want unset", value)
	}
}

func TestConfigGetReturnsValueWhenSet(t *testing.T) {
	c, rdb := newTestClient(t, "60", nil)

	value, ok, err := c.ConfigGet(context.Background(), "heartbeat")
	if err != nil {
		t.Fatalf("ConfigGet() error = %v", err)
	}
	if !ok || value != "60" {
		t.Fatalf("ConfigGet() = (%q, %v), want (60, true)", value, ok)
	}
	if rdb.lastArgs[0] != "config.get" || rdb.lastArgs[2] != "heartbeat" {
		t.Fatalf("args = %v, want [config.get <now> heartbeat]", rdb.lastArgs)
	}
}

func TestConfigSetInvokesConfigSetCommand(t *testing.T) {
	c, rdb := newTestClient(t, "", nil)
	if err := c.ConfigSet(context.Background(), "heartbeat", 60); err != nil {
		t.Fatalf("ConfigSet() error = %v", err)
	}
	if rdb.lastArgs[0] != "config.set" || rdb.lastArgs[2] != "heartbeat" || rdb.lastArgs[3] != 60 {
		t.Fatalf("args = %v, want [config.set <now> heartbeat 60]", rdb.lastArgs)
	}
}

func TestConfigUnsetInvokesConfigUnsetCommand(t *testing.T) {
	c, rdb := newTestClient(t, "", nil)
	if err := c.ConfigUnset(context.Background(), "heartbeat"); err != nil {
		t.Fatalf("ConfigUnset() error = %v", err)
	}
	if rdb.lastArgs[0] != "config.unset" || rdb.lastArgs[2] != "heartbeat" {
		t.Fatalf("args = %v, want [config.unset <now> heartbeat]", rdb.lastArgs)
	}
}

func TestInvokeReloadsScriptOnceOnNOSCRIPT(t *testing.T) {
	rdb := &fakeUniversalClient{evalShaReply: "ok", noscriptOnce: true}
	c, err := New(context.Background(), rdb, "-- test script --")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := c.Invoke(context.Background(), "pop", "emails")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("Invoke() = %q, want ok", got)
	}
	if rdb.evalShaCallCount != 2 {
		t.Fatalf("EvalSha call count = %d, want 2 (NOSCRIPT attempt + retry)", rdb.evalShaCallCount)
	}
	if rdb.scriptLoadCount != 2 {
		t.Fatalf("ScriptLoad call count = %d, want 2 (initial load at New() + reload)", rdb.scriptLoadCount)
	}
}

func TestInvokeDoesNotRetryDomainError(t *testing.T) {
	rdb := &fakeUniversalClient{evalShaErr: fakeRedisError("Queue does not exist")}
	c, err := New(context.Background(), rdb, "-- test script --")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.Invoke(context.Background(), "pop", "emails")
	if err == nil {
		t.Fatal("Invoke() error = nil, want DomainError")
	}
	if _, ok := err.(*DomainError); !ok {
		t.Fatalf("Invoke() error type = %T, want *DomainError", err)
	}
	if rdb.evalShaCallCount != 1 {
		t.Fatalf("EvalSha call count = %d, want 1 (DomainError must not retry)", rdb.evalShaCallCount)
	}
}
