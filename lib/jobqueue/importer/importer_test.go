package importer

import "testing"

type fakeJob struct {
	klass, queue, data string
}

func (j fakeJob) KlassName() string { return j.klass }
func (j fakeJob) QueueName() string { return j.queue }
func (j fakeJob) Data() string      { return j.data }

type countingProcessor struct {
	calls *int
}

func (p *countingProcessor) Process(job Job) error {
	*p.calls++
	return nil
}

func TestRegistryImport(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("widgets.Builder", func() any {
		return &countingProcessor{calls: &calls}
	})

	resolved, err := r.Import("widgets.Builder")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	proc, ok := resolved.(Processor)
	if !ok {
		t.Fatalf("resolved value %T does not implement Processor", resolved)
	}
	if err := proc.Process(fakeJob{klass: "widgets.Builder", queue: "default"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRegistryImportUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Import("does.not.Exist")
	if err == nil {
		t.Fatal("expected error for unregistered class")
	}
	if _, ok := err.(*ErrClassNotFound); !ok {
		t.Fatalf("expected *ErrClassNotFound, got %T", err)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("dup", func() any { return nil })

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register("dup", func() any { return nil })
}

type reloadTracker struct{ reloaded bool }

func (r *reloadTracker) Reload() error {
	r.reloaded = true
	return nil
}

func TestMarkForReloadOnNextImport(t *testing.T) {
	r := NewRegistry()
	tracker := &reloadTracker{}
	r.RegisterReloadable("hot", func() any { return nil }, tracker)

	if err := r.MarkForReloadOnNextImport("hot"); err != nil {
		t.Fatalf("MarkForReloadOnNextImport() error = %v", err)
	}
	if !tracker.reloaded {
		t.Fatal("expected Reload() to be called")
	}

	// unknown class names are a no-op, not an error.
	if err := r.MarkForReloadOnNextImport("unknown"); err != nil {
		t.Fatalf("MarkForReloadOnNextImport(unknown) error = %v", err)
	}
}
