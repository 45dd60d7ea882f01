package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/ext"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnEntryEnqueued(_ context.Context, _ *entry.Entry) error {
	e.calls = append(e.calls, "OnEntryEnqueued")
	return nil
}

func (e *allHooksExt) OnEntryStarted(_ context.Context, _ *entry.Entry) error {
	e.calls = append(e.calls, "OnEntryStarted")
	return nil
}

func (e *allHooksExt) OnEntryProcessed(_ context.Context, _ *entry.Entry, _ time.Duration) error {
	e.calls = append(e.calls, "OnEntryProcessed")
	return nil
}

func (e *allHooksExt) OnEntryFailed(_ context.Context, _ *entry.Entry, _ error, _ time.Time) error {
	e.calls = append(e.calls, "OnEntryFailed")
	return nil
}

func (e *allHooksExt) OnEntryDead(_ context.Context, _ *entry.Entry, _ error) error {
	e.calls = append(e.calls, "OnEntryDead")
	return nil
}

func (e *allHooksExt) OnEntryRetried(_ context.Context, _, _ *entry.Entry) error {
	e.calls = append(e.calls, "OnEntryRetried")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// enqueueOnlyExt implements only the enqueue and processed hooks.
type enqueueOnlyExt struct {
	calls []string
}

func (e *enqueueOnlyExt) Name() string { return "enqueue-only" }

func (e *enqueueOnlyExt) OnEntryEnqueued(_ context.Context, _ *entry.Entry) error {
	e.calls = append(e.calls, "OnEntryEnqueued")
	return nil
}

func (e *enqueueOnlyExt) OnEntryProcessed(_ context.Context, _ *entry.Entry, _ time.Duration) error {
	e.calls = append(e.calls, "OnEntryProcessed")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnEntryEnqueued(_ context.Context, _ *entry.Entry) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	eo := &enqueueOnlyExt{}
	r.Register(all)
	r.Register(eo)

	ctx := context.Background()
	e := &entry.Entry{ID: 1, Name: "test-job"}

	r.EmitEntryEnqueued(ctx, e)
	if len(all.calls) != 1 || all.calls[0] != "OnEntryEnqueued" {
		t.Fatalf("all: expected [OnEntryEnqueued], got %v", all.calls)
	}
	if len(eo.calls) != 1 || eo.calls[0] != "OnEntryEnqueued" {
		t.Fatalf("eo: expected [OnEntryEnqueued], got %v", eo.calls)
	}

	r.EmitEntryStarted(ctx, e)
	if len(all.calls) != 2 || all.calls[1] != "OnEntryStarted" {
		t.Fatalf("all: expected OnEntryStarted as 2nd, got %v", all.calls)
	}
	if len(eo.calls) != 1 {
		t.Fatalf("eo: should still have 1 call, got %v", eo.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	e := &entry.Entry{ID: 1, Name: "test-job"}

	r.EmitEntryEnqueued(ctx, e)
	r.EmitEntryStarted(ctx, e)
	r.EmitEntryProcessed(ctx, e, time.Second)
	r.EmitEntryFailed(ctx, e, errors.New("fail"), time.Now())
	r.EmitEntryDead(ctx, e, errors.New("dead"))
	r.EmitEntryRetried(ctx, e, &entry.Entry{ID: 2})
	r.EmitShutdown(ctx)

	expected := []string{
		"OnEntryEnqueued", "OnEntryStarted", "OnEntryProcessed",
		"OnEntryFailed", "OnEntryDead", "OnEntryRetried", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first; all-hooks must still fire.
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitEntryEnqueued(ctx, &entry.Entry{ID: 1})
	r.EmitShutdown(ctx)

	expected := []string{"OnEntryEnqueued", "OnShutdown"}
	if len(all.calls) != len(expected) {
		t.Fatalf("all: expected %v despite failing ext, got %v", expected, all.calls)
	}
}

func TestRegistry_NilLoggerUsesDefault(t *testing.T) {
	r := ext.NewRegistry(nil)
	r.Register(&failingExt{})

	// Logging a hook error must not panic.
	r.EmitEntryEnqueued(context.Background(), &entry.Entry{})
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()

	r.EmitEntryEnqueued(ctx, &entry.Entry{})
	r.EmitEntryStarted(ctx, &entry.Entry{})
	r.EmitEntryProcessed(ctx, &entry.Entry{}, time.Second)
	r.EmitEntryFailed(ctx, &entry.Entry{}, errors.New("x"), time.Now())
	r.EmitEntryDead(ctx, &entry.Entry{}, errors.New("x"))
	r.EmitEntryRetried(ctx, &entry.Entry{}, &entry.Entry{})
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	var order []string
	r.Register(orderExt{name: "first", order: &order})
	r.Register(orderExt{name: "second", order: &order})

	r.EmitEntryDead(context.Background(), &entry.Entry{}, errors.New("x"))

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

type orderExt struct {
	name  string
	order *[]string
}

func (e orderExt) Name() string { return e.name }

func (e orderExt) OnEntryDead(_ context.Context, _ *entry.Entry, _ error) error {
	*e.order = append(*e.order, e.name)
	return nil
}
