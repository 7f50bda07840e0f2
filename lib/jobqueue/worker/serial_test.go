package worker

import (
	"context"
	"testing"
)

func TestSerialWorkerHaltJobProcessingIsNoop(t *testing.T) {
	w, err := NewSerialWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil)
	if err != nil {
		t.Fatalf("NewSerialWorker() error = %v", err)
	}

	// halt_job_processing is a deliberate no-op for SerialWorker: it must
	// not panic and must not affect ShouldStop or any other state.
	w.HaltJobProcessing("some-jid")
	if w.ShouldStop() {
		t.Fatal("HaltJobProcessing() unexpectedly set the shutdown flag")
	}
}

func TestSerialWorkerDefaultsSandboxPath(t *testing.T) {
	w, err := NewSerialWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil)
	if err != nil {
		t.Fatalf("NewSerialWorker() error = %v", err)
	}
	if w.sandboxPath == "" {
		t.Fatal("sandboxPath unset, want default")
	}
}

func TestSerialWorkerHonorsWithSandboxPath(t *testing.T) {
	w, err := NewSerialWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil,
		WithSandboxPath("/tmp/custom-sandbox"))
	if err != nil {
		t.Fatalf("NewSerialWorker() error = %v", err)
	}
	if w.sandboxPath != "/tmp/custom-sandbox" {
		t.Fatalf("sandboxPath = %q, want /tmp/custom-sandbox", w.sandboxPath)
	}
}

func TestSerialWorkerRunLoopStopsWhenShouldStop(t *testing.T) {
	inv := newFakeInvoker()
	w, err := NewSerialWorker(context.Background(), "worker-1", nil, inv, nil, nil)
	if err != nil {
		t.Fatalf("NewSerialWorker() error = %v", err)
	}

	// No queue identifiers means Next always returns (nil, nil) on an
	// empty round; runLoop sleeps one full Interval() on that round and
	// then observes the Stop set here and returns.
	w.Stop()
	if err := w.runLoop(context.Background()); err != nil {
		t.Fatalf("runLoop() error = %v", err)
	}
}
