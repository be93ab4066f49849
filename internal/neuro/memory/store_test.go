package memory_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/memory"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(context.Background(), filepath.Join(t.TempDir(), "neuro-test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Migrations ---

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "neuro.db")

	s, err := memory.New(ctx, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	v1, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "t_1", nlp.Turn{Role: nlp.RoleUser, Content: "hello"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = memory.New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v2, _ := s.SchemaVersion(ctx)
	if v1 != 2 || v2 != v1 {
		t.Errorf("schema versions: first %d, reopened %d", v1, v2)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("data should survive reopening, count %d", n)
	}
}

// --- Chat log ---

func TestRecent_ChronologicalWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		if err := s.Append(ctx, fmt.Sprintf("t_%d", i), nlp.Turn{Role: nlp.RoleUser, Content: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, fmt.Sprintf("t_%d", i), nlp.Turn{Role: nlp.RoleAssistant, Content: fmt.Sprintf("a%d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []nlp.Turn{
		{Role: nlp.RoleAssistant, Content: "a3"},
		{Role: nlp.RoleUser, Content: "q4"},
		{Role: nlp.RoleAssistant, Content: "a4"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent (-want +got):\n%s", diff)
	}

	all, _ := s.Recent(ctx, 100)
	if len(all) != 10 {
		t.Errorf("expected all 10 turns, got %d", len(all))
	}
	if none, _ := s.Recent(ctx, 0); none != nil {
		t.Errorf("n=0 should return nil, got %v", none)
	}
	if n, _ := s.Count(ctx); n != 10 {
		t.Errorf("Count: got %d", n)
	}
}

func TestAppend_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Append(ctx, "t", nlp.Turn{Role: "system", Content: "x"}); err == nil {
		t.Error("expected an error for an unknown role")
	}
	if err := s.Append(ctx, "t", nlp.Turn{Role: nlp.RoleUser, Content: "   "}); err == nil {
		t.Error("expected an error for empty content")
	}
}

// --- Action log ---

func TestRecordOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	outcomes := []commands.Outcome{
		{Index: 0, Label: "iot light on", Verb: commands.VerbIoT, Status: commands.StatusSucceeded, Detail: "IoT command sent: light ON", Duration: 12 * time.Millisecond},
		{Index: 1, Label: "dance", Status: commands.StatusFailed, Detail: `parse "dance": no known verb at start of label`},
	}
	if err := s.RecordOutcomes(ctx, "t_batch", outcomes); err != nil {
		t.Fatalf("RecordOutcomes: %v", err)
	}
	if err := s.RecordOutcomes(ctx, "t_other", outcomes[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := s.OutcomesByTrace(ctx, "t_batch")
	if err != nil {
		t.Fatalf("OutcomesByTrace: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Verb != "iot" || got[0].Status != "succeeded" || got[0].Duration != 12*time.Millisecond {
		t.Errorf("record 0: %+v", got[0])
	}
	if got[1].Index != 1 || got[1].Verb != "" || got[1].Status != "failed" {
		t.Errorf("record 1: %+v", got[1])
	}

	if err := s.RecordOutcomes(ctx, "t_empty", nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
