package worker

import (
	"context"
	"testing"
)

func TestMainWorkerHaltJobProcessingCancelsMatchingJob(t *testing.T) {
	w, err := NewMainWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil)
	if err != nil {
		t.Fatalf("NewMainWorker() error = %v", err)
	}

	canceled := false
	w.cancelCurrent.Store(&jobCancel{jid: "jid-1", cancel: func() { canceled = true }})

	w.HaltJobProcessing("jid-1")
	if !canceled {
		t.Fatal("HaltJobProcessing() did not cancel the current job")
	}
}

func TestMainWorkerHaltJobProcessingIgnoresMismatchedJid(t *testing.T) {
	w, err := NewMainWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil)
	if err != nil {
		t.Fatalf("NewMainWorker() error = %v", err)
	}

	canceled := false
	w.cancelCurrent.Store(&jobCancel{jid: "jid-1", cancel: func() { canceled = true }})

	w.HaltJobProcessing("some-other-jid")
	if canceled {
		t.Fatal("HaltJobProcessing() canceled a job whose jid did not match")
	}
}

func TestMainWorkerHaltJobProcessingNoopWhenNoCurrentJob(t *testing.T) {
	w, err := NewMainWorker(context.Background(), "worker-1", []string{"emails"}, newFakeInvoker(), nil, nil)
	if err != nil {
		t.Fatalf("NewMainWorker() error = %v", err)
	}

	// Must not panic when no job has been stored yet.
	w.HaltJobProcessing("jid-1")
}

func TestMainWorkerProcessWithCancelClearsCurrentAfterward(t *testing.T) {
	inv := newFakeInvoker()
	w, err := NewMainWorker(context.Background(), "worker-1", []string{"emails"}, inv, nil, nil,
		WithSandboxPath(t.TempDir()))
	if err != nil {
		t.Fatalf("NewMainWorker() error = %v", err)
	}

	j := newJob(t, inv, "jid-1", "emails")
	w.processWithCancel(context.Background(), j)

	if w.cancelCurrent.Load() != nil {
		t.Fatal("cancelCurrent not cleared after processWithCancel returns")
	}
}
