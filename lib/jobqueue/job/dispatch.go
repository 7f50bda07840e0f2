package job

import (
	"context"
	"reflect"
	"strings"

	"github.com/relayq/relayq/lib/jobqueue/client"
	"github.com/relayq/relayq/lib/jobqueue/importer"
)

// processorMethodType is the signature every queue-named method or the
// fallback Process method must have.
var processorMethodType = reflect.TypeOf((*func(context.Context, *Job) error)(nil)).Elem()

// resolveDispatch finds the method on resolved that Job.Process should
// invoke: one named after queueName (title-cased, since Go exported
// methods must start uppercase), or — failing that — a Process method.
// Mirrors reqless/job.py's `getattr(klass, queue_name, getattr(klass,
// "process", None))`.
func resolveDispatch(resolved any, queueName string) (func(ctx context.Context, j *Job) error, string, error) {
	v := reflect.ValueOf(resolved)
	klassName := fullTypeName(resolved)

	methodName := exportedName(queueName)
	if fn, ok := methodFunc(v, methodName); ok {
		return fn, methodName, nil
	}

	if fn, ok := methodFunc(v, "Process"); ok {
		return fn, "Process", nil
	}

	if p, ok := resolved.(importer.Processor); ok {
		return func(_ context.Context, j *Job) error { return p.Process(j) }, "Process", nil
	}

	// A method named after the queue exists but has the wrong signature:
	// report that specifically rather than "missing".
	if m := v.MethodByName(methodName); m.IsValid() {
		return nil, methodName, &client.MethodTypeError{KlassName: klassName, Method: methodName}
	}

	return nil, methodName, &client.MethodMissing{KlassName: klassName, Method: methodName}
}

func methodFunc(v reflect.Value, name string) (func(ctx context.Context, j *Job) error, bool) {
	m := v.MethodByName(name)
	if !m.IsValid() {
		return nil, false
	}
	if m.Type() != processorMethodType {
		return nil, false
	}
	fn, ok := m.Interface().(func(context.Context, *Job) error)
	if !ok {
		return nil, false
	}
	return fn, true
}

// exportedName upper-cases the first rune of name so it matches Go's
// exported-method naming rule, e.g. "email-delivery" has no valid direct
// analogue, so callers are expected to register queue-dispatchable
// methods under the queue's simple identifier (e.g. queue "emails" ->
// method "Emails").
func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func fullTypeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg + "." + t.Name()
	}
	return t.Name()
}
