package worker

import (
	"context"
	"testing"
)

func TestPooledWorkerDefaultsPoolSize(t *testing.T) {
	w, err := NewPooledWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil,
		WithSandboxPath(t.TempDir()))
	if err != nil {
		t.Fatalf("NewPooledWorker() error = %v", err)
	}

	for i := 0; i < defaultPoolSize; i++ {
		if !w.sem.TryAcquire(1) {
			t.Fatalf("TryAcquire() failed at permit %d, want %d permits available", i, defaultPoolSize)
		}
	}
	if w.sem.TryAcquire(1) {
		t.Fatalf("TryAcquire() succeeded beyond the default pool size of %d", defaultPoolSize)
	}
}

func TestPooledWorkerHaltJobProcessingCancelsTrackedJob(t *testing.T) {
	w, err := NewPooledWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil,
		WithSandboxPath(t.TempDir()))
	if err != nil {
		t.Fatalf("NewPooledWorker() error = %v", err)
	}

	canceled := false
	w.mu.Lock()
	w.cancels["jid-1"] = func() { canceled = true }
	w.mu.Unlock()

	w.HaltJobProcessing("jid-1")
	if !canceled {
		t.Fatal("HaltJobProcessing() did not cancel the tracked job")
	}
}

func TestPooledWorkerHaltJobProcessingNoopForUnknownJid(t *testing.T) {
	w, err := NewPooledWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil,
		WithSandboxPath(t.TempDir()))
	if err != nil {
		t.Fatalf("NewPooledWorker() error = %v", err)
	}

	// Must not panic when the jid is not currently tracked.
	w.HaltJobProcessing("unknown-jid")
}

func TestPooledWorkerProcessRentsAndReleasesSandbox(t *testing.T) {
	inv := newFakeInvoker()
	w, err := NewPooledWorker(context.Background(), "worker-1", []string{"emails"}, inv, nil, nil,
		WithSandboxPath(t.TempDir()), WithPoolSize(2))
	if err != nil {
		t.Fatalf("NewPooledWorker() error = %v", err)
	}

	j := newJob(t, inv, "jid-1", "emails")
	w.process(context.Background(), j)

	w.mu.Lock()
	_, tracked := w.cancels["jid-1"]
	w.mu.Unlock()
	if tracked {
		t.Fatal("cancelFunc for jid-1 still tracked after process() returned")
	}

	path, release, ok := w.ring.Rent()
	if !ok {
		t.Fatal("ring.Rent() = false after process() released its slot, want true")
	}
	_ = release
	if path == "" {
		t.Fatal("ring.Rent() returned empty path")
	}
}
