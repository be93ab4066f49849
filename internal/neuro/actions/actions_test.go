package actions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Neuro/internal/neuro/actions"
	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeLauncher struct {
	mu       sync.Mutex
	calls    []string
	failApps map[string]bool
	appErr   error
	urlErr   error
}

func (f *fakeLauncher) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeLauncher) OpenApp(_ context.Context, name string) error {
	f.record("app:" + name)
	if f.failApps[name] {
		return errors.New("application not found")
	}
	return f.appErr
}

func (f *fakeLauncher) CloseApp(_ context.Context, name string) error {
	f.record("close:" + name)
	return nil
}

func (f *fakeLauncher) OpenURL(_ context.Context, url string) error {
	f.record("url:" + url)
	return f.urlErr
}

func (f *fakeLauncher) OpenFile(_ context.Context, path string) error {
	f.record("file:" + filepath.Base(path))
	return nil
}

func (f *fakeLauncher) Volume(_ context.Context, cmd actions.VolumeCommand) error {
	f.record("volume:" + string(cmd))
	return nil
}

// scriptedCompleter replies from a queue; each entry is a text or an error.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []any
	reqs    []nlp.CompletionRequest
}

func (s *scriptedCompleter) Complete(_ context.Context, req nlp.CompletionRequest) (*nlp.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if len(s.replies) == 0 {
		return nil, nlp.ErrEmptyCompletion
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return &nlp.CompletionResponse{Text: next.(string)}, nil
}

type fakePublisher struct {
	payloads []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, id, state string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	p := id + " " + strings.ToUpper(state)
	f.payloads = append(f.payloads, p)
	return p, nil
}

type fakeImages struct {
	images [][]byte
	err    error
}

func (f *fakeImages) Generate(context.Context, string) ([][]byte, error) {
	return f.images, f.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func baseDeps(t *testing.T) actions.Deps {
	t.Helper()
	return actions.Deps{
		Launcher:  &fakeLauncher{},
		Completer: &scriptedCompleter{},
		Devices:   &fakePublisher{},
		Images:    &fakeImages{},
		DataDir:   t.TempDir(),
		Persona:   actions.Persona{AssistantName: "Neuro", Username: "Ada"},
		Now:       func() time.Time { return fixedNow },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// run parses label and calls its bound handler directly.
func run(t *testing.T, d actions.Deps, ctx context.Context, label string) (string, error) {
	t.Helper()
	reg, err := commands.NewRegistry(actions.Bindings(d)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cmd, err := commands.Parse(label)
	if err != nil {
		t.Fatalf("Parse(%q): %v", label, err)
	}
	h, ok := reg.Resolve(cmd.Verb)
	if !ok {
		t.Fatalf("verb %q is not bound", cmd.Verb)
	}
	return h(ctx, cmd)
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

func TestBindings_AllButReminder(t *testing.T) {
	reg, err := commands.NewRegistry(actions.Bindings(baseDeps(t))...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var want []commands.Verb
	for _, v := range commands.Verbs() {
		if v != commands.VerbReminder {
			want = append(want, v)
		}
	}
	if diff := cmp.Diff(want, reg.Verbs()); diff != "" {
		t.Errorf("bound verbs (-want +got):\n%s", diff)
	}
}

func TestBindings_MissingDependenciesLeaveVerbsUnbound(t *testing.T) {
	reg, err := commands.NewRegistry(actions.Bindings(actions.Deps{})...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if diff := cmp.Diff([]commands.Verb{commands.VerbExit}, reg.Verbs()); diff != "" {
		t.Errorf("bound verbs (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Desktop handlers
// ---------------------------------------------------------------------------

func TestDesktopHandlers(t *testing.T) {
	cases := []struct {
		label      string
		wantDetail string
		wantCall   string
	}{
		{"open chrome", "Opened chrome.", "app:chrome"},
		{"close spotify", "Closed spotify.", "close:spotify"},
		{"play lofi beats", "Playing lofi beats on YouTube.", "url:https://www.youtube.com/results?search_query=lofi+beats"},
		{"google search cats & dogs", "Searched Google for cats & dogs.", "url:https://www.google.com/search?q=cats+%26+dogs"},
		{"youtube search go tutorial", "Searched YouTube for go tutorial.", "url:https://www.youtube.com/results?search_query=go+tutorial"},
		{"system volume up", "System: volume up.", "volume:volume up"},
		{"system mute", "System: mute.", "volume:mute"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			d := baseDeps(t)
			l := d.Launcher.(*fakeLauncher)
			got, err := run(t, d, context.Background(), tc.label)
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if got != tc.wantDetail {
				t.Errorf("detail: got %q, want %q", got, tc.wantDetail)
			}
			if diff := cmp.Diff([]string{tc.wantCall}, l.calls); diff != "" {
				t.Errorf("launcher calls (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpen_FallsBackToWebsite(t *testing.T) {
	d := baseDeps(t)
	d.Launcher = &fakeLauncher{failApps: map[string]bool{"Whats App": true}}

	got, err := run(t, d, context.Background(), "open Whats App")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != "Opened https://www.whatsapp.com." {
		t.Errorf("detail: got %q", got)
	}

	d.Launcher = &fakeLauncher{failApps: map[string]bool{"x": true}, urlErr: errors.New("no browser")}
	if _, err := run(t, d, context.Background(), "open x"); err == nil {
		t.Fatal("expected an error when both launch and website fail")
	}
}

func TestOpen_UnsafeNameHasNoFallback(t *testing.T) {
	d := baseDeps(t)
	launcher := &fakeLauncher{appErr: actions.ErrUnsafeName}
	d.Launcher = launcher

	if _, err := run(t, d, context.Background(), "open x | calc"); !errors.Is(err, actions.ErrUnsafeName) {
		t.Fatalf("expected ErrUnsafeName, got %v", err)
	}
	for _, c := range launcher.calls {
		if strings.HasPrefix(c, "url:") {
			t.Errorf("a rejected name must not open a website: %v", launcher.calls)
		}
	}
}

func TestSystem_UnknownCommandFails(t *testing.T) {
	d := baseDeps(t)
	if _, err := run(t, d, context.Background(), "system shutdown"); err == nil {
		t.Fatal("expected an error for an unsupported system command")
	}
	if calls := d.Launcher.(*fakeLauncher).calls; len(calls) != 0 {
		t.Errorf("launcher must not be called, got %v", calls)
	}
}

func TestIoT(t *testing.T) {
	d := baseDeps(t)
	got, err := run(t, d, context.Background(), "iot light on")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != "IoT command sent: light ON" {
		t.Errorf("detail: got %q", got)
	}

	d.Devices = &fakePublisher{err: errors.New("no such device: toaster")}
	if _, err := run(t, d, context.Background(), "iot toaster on"); err == nil {
		t.Fatal("expected the publisher error")
	}
}

func TestExit(t *testing.T) {
	got, err := run(t, baseDeps(t), context.Background(), "exit now")
	if err != nil || got != "Goodbye, Ada!" {
		t.Fatalf("got %q, %v", got, err)
	}
}

// ---------------------------------------------------------------------------
// Language-model handlers
// ---------------------------------------------------------------------------

func TestGeneral_UsesHistoryAndPersona(t *testing.T) {
	d := baseDeps(t)
	c := &scriptedCompleter{replies: []any{"He was a physicist."}}
	d.Completer = c

	var history []nlp.Turn
	for i := range 10 {
		history = append(history, nlp.Turn{Role: nlp.RoleUser, Content: "turn " + string(rune('a'+i))})
	}
	ctx := actions.WithHistory(context.Background(), history)

	got, err := run(t, d, ctx, "general who is albert einstein?")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != "He was a physicist." {
		t.Errorf("answer: got %q", got)
	}
	req := c.reqs[0]
	if strings.Contains(req.Prompt, "turn b\n") || !strings.Contains(req.Prompt, "USER: turn c\n") {
		t.Errorf("prompt should carry the last 8 turns only:\n%s", req.Prompt)
	}
	if !strings.HasSuffix(req.Prompt, "USER: who is albert einstein?\nASSISTANT:") {
		t.Errorf("prompt should end with the query:\n%s", req.Prompt)
	}
	if !strings.Contains(req.System, "You are Neuro") || !strings.Contains(req.System, "User is Ada") {
		t.Errorf("system message should carry the persona:\n%s", req.System)
	}
	if !strings.Contains(req.System, "Saturday, Date: 14 March 2026, Time: 09:26:53") {
		t.Errorf("system message should carry the date context:\n%s", req.System)
	}
	if req.Grounded {
		t.Error("general answers are not grounded")
	}
}

func TestGeneral_EmptyAnswerRetriesThenApologises(t *testing.T) {
	d := baseDeps(t)
	c := &scriptedCompleter{replies: []any{nlp.ErrEmptyCompletion, "Hello!"}}
	d.Completer = c
	got, err := run(t, d, context.Background(), "general hi")
	if err != nil || got != "Hello!" {
		t.Fatalf("got %q, %v", got, err)
	}
	if len(c.reqs) != 2 || c.reqs[1].Prompt != "Answer briefly: hi" {
		t.Errorf("expected one simplified retry, got %+v", c.reqs)
	}

	d.Completer = &scriptedCompleter{replies: []any{nlp.ErrEmptyCompletion, nlp.ErrEmptyCompletion}}
	got, err = run(t, d, context.Background(), "general hi")
	if err != nil || got != actions.ApologyText {
		t.Fatalf("got %q, %v", got, err)
	}

	boom := errors.New("quota exceeded")
	d.Completer = &scriptedCompleter{replies: []any{boom}}
	if _, err := run(t, d, context.Background(), "general hi"); !errors.Is(err, boom) {
		t.Fatalf("transport errors should fail the action, got %v", err)
	}
}

func TestRealtime_IsGrounded(t *testing.T) {
	d := baseDeps(t)
	c := &scriptedCompleter{replies: []any{"Sunny, 18°C."}}
	d.Completer = c
	if _, err := run(t, d, context.Background(), "realtime weather in paris"); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !c.reqs[0].Grounded {
		t.Error("realtime requests must be grounded")
	}
}

func TestContent_WritesAndOpensDocument(t *testing.T) {
	d := baseDeps(t)
	d.Completer = &scriptedCompleter{replies: []any{"# Cover letter\n\nDear hiring manager,"}}

	got, err := run(t, d, context.Background(), "content cover letter for a go job")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	path := filepath.Join(d.DataDir, "cover_letter_for_a_go_job.txt")
	if got != "Wrote "+path+"." {
		t.Errorf("detail: got %q", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Cover letter") {
		t.Errorf("document body: %q", data)
	}
	if diff := cmp.Diff([]string{"file:cover_letter_for_a_go_job.txt"}, d.Launcher.(*fakeLauncher).calls); diff != "" {
		t.Errorf("launcher calls (-want +got):\n%s", diff)
	}
}

func TestContent_FallbackNotice(t *testing.T) {
	d := baseDeps(t)
	d.Completer = &scriptedCompleter{replies: []any{nlp.ErrEmptyCompletion}}
	if _, err := run(t, d, context.Background(), "content haiku"); err != nil {
		t.Fatalf("handler: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(d.DataDir, "haiku.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "Unable to auto-generate detailed content for: haiku.") {
		t.Errorf("expected the fallback notice, got %q", data)
	}
}

// ---------------------------------------------------------------------------
// Image generation handler
// ---------------------------------------------------------------------------

func TestGenerateImage_SavesOnlyJPEGs(t *testing.T) {
	d := baseDeps(t)
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'f', 'i', 'f'}
	d.Images = &fakeImages{images: [][]byte{jpeg, []byte(`{"error":"nsfw"}`), jpeg}}

	got, err := run(t, d, context.Background(), "generate image red fox")
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	want1 := filepath.Join(d.DataDir, "red_fox_1.jpg")
	want3 := filepath.Join(d.DataDir, "red_fox_3.jpg")
	if got != "Saved 2 image(s): "+want1+", "+want3 {
		t.Errorf("detail: got %q", got)
	}
	if _, err := os.Stat(filepath.Join(d.DataDir, "red_fox_2.jpg")); !os.IsNotExist(err) {
		t.Error("non-JPEG payload must not be saved")
	}
}

func TestGenerateImage_Failures(t *testing.T) {
	d := baseDeps(t)
	d.Images = &fakeImages{images: [][]byte{[]byte("<html>")}}
	if _, err := run(t, d, context.Background(), "generate image cat"); err == nil {
		t.Error("expected an error when no JPEG is returned")
	}
	d.Images = &fakeImages{err: errors.New("unauthorized")}
	if _, err := run(t, d, context.Background(), "generate image cat"); err == nil {
		t.Error("expected the generator error")
	}
}
