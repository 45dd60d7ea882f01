package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", job.Func1(func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	}))

	if err := r.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected definition to be registered")
	}

	args, _ := entry.NewArgs(emailPayload{To: "alice@example.com", Subject: "Hello"})
	if err := d.Performer.Perform(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
	if got.Subject != "Hello" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Hello")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no definition for unregistered job")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()
	noop := job.Func0(func(context.Context) error { return nil })

	for _, name := range []string{"job-c", "job-a", "job-b"} {
		if err := r.Register(job.NewDefinition(name, noop)); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	names := r.Names()
	expected := []string{"job-a", "job-b", "job-c"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := job.NewRegistry()

	tests := []struct {
		name string
		def  *job.Definition
	}{
		{"nil", nil},
		{"empty name", job.NewDefinition("", job.Func0(func(context.Context) error { return nil }))},
		{"no performer", job.NewDefinition("x", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.def); !errors.Is(err, jobqueue.ErrInvalidJob) {
				t.Errorf("Register = %v, want ErrInvalidJob", err)
			}
		})
	}
}

func TestFunc3_DecodesPositionalArgs(t *testing.T) {
	var (
		gotS string
		gotN int
		gotB bool
	)
	p := job.Func3(func(_ context.Context, s string, n int, b bool) error {
		gotS, gotN, gotB = s, n, b
		return nil
	})

	args, _ := entry.NewArgs("x", 3, true)
	if err := p.Perform(context.Background(), args); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if gotS != "x" || gotN != 3 || !gotB {
		t.Errorf("got (%q, %d, %v), want (x, 3, true)", gotS, gotN, gotB)
	}
}

func TestFunc1_InvalidArgument(t *testing.T) {
	p := job.Func1(func(_ context.Context, _ emailPayload) error {
		t.Fatal("handler should not be called with invalid argument")
		return nil
	})

	args, _ := entry.NewArgs("not an object")
	if err := p.Perform(context.Background(), args); err == nil {
		t.Fatal("expected error for invalid argument")
	}
}

func TestFunc2_MissingTrailingArgument(t *testing.T) {
	var gotB int
	p := job.Func2(func(_ context.Context, _ string, b int) error {
		gotB = b
		return nil
	})

	args, _ := entry.NewArgs("only-one")
	if err := p.Perform(context.Background(), args); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if gotB != 0 {
		t.Errorf("b = %d, want zero value", gotB)
	}
}

func TestDefinition_RetryCeiling(t *testing.T) {
	noop := job.Func0(func(context.Context) error { return nil })

	tests := []struct {
		name string
		opts []job.Option
		want int
	}{
		{"default", nil, 25},
		{"custom", []job.Option{job.WithMaxRetries(3)}, 3},
		{"no retry", []job.Option{job.WithoutRetry()}, 0},
		{"negative restores default", []job.Option{job.WithMaxRetries(3), job.WithMaxRetries(-1)}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := job.NewDefinition("x", noop, tt.opts...)
			if got := def.RetryCeiling(25); got != tt.want {
				t.Errorf("RetryCeiling = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefinition_WithLaneKeepsPolicy(t *testing.T) {
	def := job.NewDefinition("x", job.Func0(func(context.Context) error { return nil }),
		job.WithLane("low"), job.WithMaxRetries(2), job.WithTimeout(time.Second))

	moved := def.WithLane("critical")
	if moved.Opts.Lane != "critical" {
		t.Errorf("Lane = %q, want critical", moved.Opts.Lane)
	}
	if def.Opts.Lane != "low" {
		t.Errorf("original Lane = %q, want low", def.Opts.Lane)
	}
	if moved.Opts.MaxRetries != 2 || moved.Opts.Timeout != time.Second {
		t.Errorf("policy not preserved: %+v", moved.Opts)
	}
	if moved.Name != def.Name {
		t.Errorf("Name = %q, want %q", moved.Name, def.Name)
	}
}
