package listener

import (
	"context"
	"testing"
	"time"
)

func TestFutureSingleAssignment(t *testing.T) {
	f := NewFuture[int]()
	f.SetResult(1)
	f.SetResult(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := f.Result(ctx)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if v != 1 {
		t.Fatalf("Result() = %d, want 1 (first assignment wins)", v)
	}
}

func TestFutureResultTimesOut(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Result(ctx); err == nil {
		t.Fatal("Result() expected error on unset future with expired context")
	}
}

func TestUnlistenBeforeListenTerminatesCleanly(t *testing.T) {
	l := New(nil, []string{"ql:canceled"}, nil)

	if err := l.Unlisten(); err != nil {
		t.Fatalf("Unlisten() error = %v", err)
	}
	if l.IsListening() {
		t.Fatal("IsListening() = true after Unlisten with no active cycle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs, err := l.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	// Listen() must terminate cleanly: the message channel closes instead
	// of blocking forever, and WaitUntilListening must not hang either.
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("expected closed, empty message channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Listen() channel never closed after a pre-emptive Unlisten")
	}

	if err := l.WaitUntilListening(ctx); err != nil {
		t.Fatalf("WaitUntilListening() error = %v", err)
	}
}

func TestUnlistenIdempotent(t *testing.T) {
	l := New(nil, []string{"ql:canceled"}, nil)
	if err := l.Unlisten(); err != nil {
		t.Fatalf("first Unlisten() error = %v", err)
	}
	if err := l.Unlisten(); err != nil {
		t.Fatalf("second Unlisten() error = %v", err)
	}
}
