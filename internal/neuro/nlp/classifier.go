package nlp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bdobrica/Neuro/common/trace"
)

// classifyMaxTokens bounds the label list; a few short labels never need more.
const classifyMaxTokens = 128

// Classifier turns an utterance into an ordered list of command labels.
//
// It never fails: a completion error, an empty completion or a completion
// with no usable label all degrade to a single "general <utterance>" label.
type Classifier struct {
	completer Completer
	tokens    []string
	system    string
	window    int
	logger    *slog.Logger
}

// ClassifierOption customises a Classifier.
type ClassifierOption func(*Classifier)

// WithHistoryWindow sets how many prior turns are shown to the model.
func WithHistoryWindow(n int) ClassifierOption {
	return func(c *Classifier) {
		if n >= 0 {
			c.window = n
		}
	}
}

// WithCatalogue replaces the verb catalogue rendered into the system prompt.
func WithCatalogue(cat Catalogue) ClassifierOption {
	return func(c *Classifier) { c.system = BuildSystemPrompt(cat) }
}

// NewClassifier returns a Classifier backed by completer.
//
// verbTokens are the spellings a label may start with (commands.VerbTokens).
// Candidates that start with anything else are dropped.
func NewClassifier(completer Completer, verbTokens []string, logger *slog.Logger, opts ...ClassifierOption) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	toks := make([]string, 0, len(verbTokens))
	for _, t := range verbTokens {
		if t = strings.ToLower(oneLine(t)); t != "" {
			toks = append(toks, t)
		}
	}
	c := &Classifier{
		completer: completer,
		tokens:    toks,
		system:    BuildSystemPrompt(DefaultCatalogue()),
		window:    DefaultHistoryWindow,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the labels for u. The result is never empty.
func (c *Classifier) Classify(ctx context.Context, u Utterance) []string {
	log := c.logger
	if id := trace.FromContext(ctx); id != "" {
		log = log.With("trace_id", id)
	}
	fallback := []string{"general " + strings.TrimSpace(u.Text)}

	resp, err := c.completer.Complete(ctx, CompletionRequest{
		System:    c.system,
		Prompt:    RenderTranscript(LastTurns(u.History, c.window), u.Text),
		MaxTokens: classifyMaxTokens,
	})
	if err != nil {
		log.Warn("classification failed, using general fallback", "err", err)
		return fallback
	}

	labels := c.filter(log, resp.Text)
	if len(labels) == 0 {
		log.Info("no usable labels in completion, using general fallback", "completion", resp.Text)
		return fallback
	}
	log.Debug("utterance classified", "labels", labels)
	return labels
}

// filter splits a completion on commas and keeps, in order, every candidate
// that starts with a known verb token on a word boundary.
func (c *Classifier) filter(log *slog.Logger, completion string) []string {
	var out []string
	for _, part := range strings.Split(completion, ",") {
		cand := cleanCandidate(part)
		if cand == "" {
			continue
		}
		if !c.startsWithVerb(cand) {
			log.Debug("dropping candidate without a known verb", "candidate", cand)
			continue
		}
		out = append(out, cand)
	}
	return out
}

func (c *Classifier) startsWithVerb(cand string) bool {
	for _, tok := range c.tokens {
		if cand == tok || strings.HasPrefix(cand, tok+" ") {
			return true
		}
	}
	return false
}

// cleanCandidate lower-cases one comma-separated piece, collapses whitespace
// and strips wrapping quotes or backticks and a trailing full stop.
func cleanCandidate(s string) string {
	s = strings.ToLower(oneLine(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
