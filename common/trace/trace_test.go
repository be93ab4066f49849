package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bdobrica/Neuro/common/trace"
)

func TestGenerateID_Format(t *testing.T) {
	id := trace.GenerateID()
	if !strings.HasPrefix(id, "t_") {
		t.Fatalf("expected t_ prefix, got %q", id)
	}
	if len(id) != 2+32 {
		t.Fatalf("expected 34 characters, got %d (%q)", len(id), id)
	}
	if id == trace.GenerateID() {
		t.Fatal("two generated IDs must differ")
	}
}

func TestEnsure_KeepsExistingID(t *testing.T) {
	ctx := trace.WithTraceID(context.Background(), "t_existing")
	got, id := trace.Ensure(ctx)
	if id != "t_existing" {
		t.Fatalf("expected existing ID, got %q", id)
	}
	if trace.FromContext(got) != "t_existing" {
		t.Fatalf("context lost the trace ID")
	}
}

func TestEnsure_GeneratesWhenMissing(t *testing.T) {
	ctx, id := trace.Ensure(context.Background())
	if id == "" {
		t.Fatal("expected a generated ID")
	}
	if trace.FromContext(ctx) != id {
		t.Fatalf("FromContext: got %q, want %q", trace.FromContext(ctx), id)
	}
}

func TestFromContext_Empty(t *testing.T) {
	if got := trace.FromContext(context.Background()); got != "" {
		t.Fatalf("expected empty ID, got %q", got)
	}
}
