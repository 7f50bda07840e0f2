package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/lib/jobqueue/job"
	"github.com/relayq/relayq/lib/jobqueue/logger"
)

type recordedCall struct {
	command string
	args    []any
}

type fakeInvoker struct {
	calls     []recordedCall
	replies   map[string]string
	popQueue  map[string][]string // queue name -> queued pop replies, consumed in order
	heartbeat map[string]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		replies:   map[string]string{},
		popQueue:  map[string][]string{},
		heartbeat: map[string]error{},
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, command string, args ...any) (string, error) {
	f.calls = append(f.calls, recordedCall{command: command, args: args})
	switch command {
	case "pop":
		qname := args[0].(string)
		replies := f.popQueue[qname]
		if len(replies) == 0 {
			return "[]", nil
		}
		f.popQueue[qname] = replies[1:]
		return replies[0], nil
	case "heartbeat":
		jid := args[0].(string)
		if err, ok := f.heartbeat[jid]; ok {
			return "", err
		}
		return "2000.0", nil
	default:
		return f.replies[command], nil
	}
}

func jobRaw(jid, queue string) string {
	return fmt.Sprintf(`{"jid":%q,"klass":"widgets.Builder","queue":%q,"data":"{}",
		"priority":0,"tags":[],"throttles":[],"state":"running","failure":null,
		"dependents":[],"dependencies":[],"tracked":false,"worker":"worker-1",
		"remaining":5,"expires":2000,"retries":5,"history":[]}`, jid, queue)
}

func newJob(t *testing.T, inv *fakeInvoker, jid, queue string) *job.Job {
	t.Helper()
	j, err := job.New(inv, nil, &logger.DiscardLogger{}, jobRaw(jid, queue))
	if err != nil {
		t.Fatalf("job.New() error = %v", err)
	}
	return j
}

func TestBaseWorkerNextDrainsResumedFirst(t *testing.T) {
	inv := newFakeInvoker()
	resumed := []*job.Job{newJob(t, inv, "resumed-1", "emails")}

	cfg := newConfig("worker-1", []string{"emails"}, inv, nil, nil, []Option{WithResume(ResumeJobs(resumed))})
	bw, err := newBase(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	j, err := bw.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if j == nil || j.Jid() != "resumed-1" {
		t.Fatalf("Next() = %v, want resumed-1", j)
	}

	heartbeats := 0
	for _, c := range inv.calls {
		if c.command == "heartbeat" {
			heartbeats++
		}
	}
	if heartbeats != 1 {
		t.Fatalf("heartbeat calls = %d, want 1", heartbeats)
	}
}

func TestBaseWorkerNextSkipsResumedJobWithLostLock(t *testing.T) {
	inv := newFakeInvoker()
	resumed := []*job.Job{
		newJob(t, inv, "lost-1", "emails"),
		newJob(t, inv, "kept-1", "emails"),
	}
	inv.heartbeat["lost-1"] = &client.LostLock{DomainError: &client.DomainError{Command: "heartbeat", Message: "not owned by worker-1"}}

	cfg := newConfig("worker-1", []string{"emails"}, inv, nil, nil, []Option{WithResume(ResumeJobs(resumed))})
	bw, err := newBase(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	j, err := bw.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if j == nil || j.Jid() != "kept-1" {
		t.Fatalf("Next() = %v, want kept-1 (lost-1 skipped)", j)
	}
}

func TestBaseWorkerNextRoundRobinsQueues(t *testing.T) {
	inv := newFakeInvoker()
	inv.popQueue["emails"] = []string{"[" + jobRaw("e-1", "emails") + "]"}
	inv.popQueue["sms"] = []string{"[" + jobRaw("s-1", "sms") + "]"}

	cfg := newConfig("worker-1", []string{"emails", "sms"}, inv, nil, nil, nil)
	bw, err := newBase(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	first, err := bw.Next(context.Background())
	if err != nil || first == nil || first.Jid() != "e-1" {
		t.Fatalf("first Next() = %v, %v, want e-1", first, err)
	}
	second, err := bw.Next(context.Background())
	if err != nil || second == nil || second.Jid() != "s-1" {
		t.Fatalf("second Next() = %v, %v, want s-1", second, err)
	}

	third, err := bw.Next(context.Background())
	if err != nil {
		t.Fatalf("third Next() error = %v", err)
	}
	if third != nil {
		t.Fatalf("third Next() = %v, want nil (round exhausted)", third)
	}
}

func TestBaseWorkerNextReturnsNilWhenNoQueuesResolve(t *testing.T) {
	inv := newFakeInvoker()
	cfg := newConfig("worker-1", nil, inv, nil, nil, nil)
	bw, err := newBase(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	j, err := bw.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if j != nil {
		t.Fatalf("Next() = %v, want nil", j)
	}
}

func TestHandleOwnershipEventDispatchesHalt(t *testing.T) {
	var haltedJid string
	cfg := newConfig("worker-1", []string{"emails"}, newFakeInvoker(), nil, nil, nil)
	bw, err := newBase(context.Background(), cfg, func(jid string) { haltedJid = jid })
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	bw.handleOwnershipEvent(`{"event":"lock_lost","jid":"jid-1"}`)
	if haltedJid != "jid-1" {
		t.Fatalf("halt called with %q, want jid-1", haltedJid)
	}
}

func TestHandleOwnershipEventIgnoresUnknownEvent(t *testing.T) {
	called := false
	cfg := newConfig("worker-1", []string{"emails"}, newFakeInvoker(), nil, nil, nil)
	bw, err := newBase(context.Background(), cfg, func(jid string) { called = true })
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	bw.handleOwnershipEvent(`{"event":"stats","jid":"jid-1"}`)
	if called {
		t.Fatal("halt called for a non-ownership event")
	}
}

func TestStopAndShouldStop(t *testing.T) {
	cfg := newConfig("worker-1", []string{"emails"}, newFakeInvoker(), nil, nil, nil)
	bw, err := newBase(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newBase() error = %v", err)
	}

	if bw.ShouldStop() {
		t.Fatal("ShouldStop() = true before Stop()")
	}
	bw.Stop()
	if !bw.ShouldStop() {
		t.Fatal("ShouldStop() = false after Stop()")
	}
}
