package entry_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/jobqueue/entry"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state entry.State
		want  string
	}{
		{entry.StateEnqueued, "enqueued"},
		{entry.StateProcessed, "processed"},
		{entry.StateFailed, "failed"},
		{entry.StateDead, "dead"},
		{entry.StateRetried, "retried"},
		{entry.State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestArgs_RoundTrip(t *testing.T) {
	args, err := entry.NewArgs("hello", 42, map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("NewArgs: %v", err)
	}
	if args.Len() != 3 {
		t.Fatalf("Len = %d, want 3", args.Len())
	}

	var s string
	var n int
	var m map[string]int
	if err := args.Decode(0, &s); err != nil {
		t.Fatalf("Decode(0): %v", err)
	}
	if err := args.Decode(1, &n); err != nil {
		t.Fatalf("Decode(1): %v", err)
	}
	if err := args.Decode(2, &m); err != nil {
		t.Fatalf("Decode(2): %v", err)
	}
	if s != "hello" || n != 42 || m["n"] != 1 {
		t.Errorf("decoded = (%q, %d, %v), want (hello, 42, map[n:1])", s, n, m)
	}

	text, err := args.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != `["hello",42,{"n":1}]` {
		t.Errorf("MarshalText = %s", text)
	}
	parsed, err := entry.ParseArgs(text)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if parsed.Len() != 3 {
		t.Errorf("parsed Len = %d, want 3", parsed.Len())
	}
}

func TestArgs_DecodeMissingLeavesValue(t *testing.T) {
	var args entry.Args
	v := "unchanged"
	if err := args.Decode(3, &v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != "unchanged" {
		t.Errorf("v = %q, want unchanged", v)
	}
}

func TestArgs_DecodeTypeMismatch(t *testing.T) {
	args, _ := entry.NewArgs("text")
	var n int
	if err := args.Decode(0, &n); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSerializeError(t *testing.T) {
	if got := entry.SerializeError(nil); got != "" {
		t.Errorf("SerializeError(nil) = %q, want empty", got)
	}

	base := errors.New("disk full")
	wrapped := fmt.Errorf("write report: %w", base)

	f := entry.ParseFailure(entry.SerializeError(wrapped))
	if f == nil {
		t.Fatal("expected failure")
	}
	if f.Message != "write report: disk full" {
		t.Errorf("Message = %q", f.Message)
	}
	if f.Name != "*fmt.wrapError" {
		t.Errorf("Name = %q, want *fmt.wrapError", f.Name)
	}
	if f.Cause == nil || f.Cause.Message != "disk full" {
		t.Errorf("Cause = %+v, want disk full", f.Cause)
	}
}

func TestParseFailure_PlainText(t *testing.T) {
	f := entry.ParseFailure("boom")
	if f == nil || f.Message != "boom" {
		t.Errorf("ParseFailure(boom) = %+v", f)
	}
}

func TestDraft_Entry(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &entry.Draft{Name: "send", Lane: "default", AddedAt: now, Retries: 2}

	e := d.Entry(7)
	if e.ID != 7 || e.State != entry.StateEnqueued {
		t.Errorf("entry = %+v", e)
	}
	if !e.RunAt.Equal(now) {
		t.Errorf("RunAt = %v, want AddedAt %v", e.RunAt, now)
	}
	if !e.Due(now) {
		t.Error("entry should be due at AddedAt")
	}
	if e.Due(now.Add(-time.Second)) {
		t.Error("entry should not be due before RunAt")
	}
}

func TestEntry_CloneIsDeep(t *testing.T) {
	ended := time.Now()
	args, _ := entry.NewArgs("a")
	e := &entry.Entry{ID: 1, Args: args, EndedAt: &ended}

	cp := e.Clone()
	cp.Args[0][1] = 'z'
	*cp.EndedAt = ended.Add(time.Hour)

	if string(e.Args[0]) != `"a"` {
		t.Errorf("original args mutated: %s", e.Args[0])
	}
	if !e.EndedAt.Equal(ended) {
		t.Error("original EndedAt mutated")
	}
}

func TestEntry_JSONArgsArray(t *testing.T) {
	args, err := entry.NewArgs("a@example.com", 3)
	if err != nil {
		t.Fatalf("NewArgs: %v", err)
	}
	en := &entry.Entry{ID: 7, Name: "email", Args: args, Lane: "default"}

	data, err := json.Marshal(en)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal raw: %v", err)
	}
	if string(raw["args"]) != `["a@example.com",3]` {
		t.Errorf("args = %s, want a JSON array", raw["args"])
	}

	var back entry.Entry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var to string
	if err := back.Args.Decode(0, &to); err != nil || to != "a@example.com" {
		t.Errorf("Decode(0) = %q, %v", to, err)
	}
}
