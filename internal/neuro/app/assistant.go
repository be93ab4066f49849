package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bdobrica/Neuro/common/trace"
	"github.com/bdobrica/Neuro/internal/neuro/actions"
	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
	"github.com/bdobrica/Neuro/internal/neuro/observability"
)

// ErrEmptyUtterance is returned by Handle for blank input.
var ErrEmptyUtterance = errors.New("empty utterance")

// Classifier turns an utterance into labels. *nlp.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, u nlp.Utterance) []string
}

// Dispatcher runs a batch of labels. *commands.Executor implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, labels []string) []commands.Outcome
}

// History is the conversation memory. *memory.Store implements it.
type History interface {
	Recent(ctx context.Context, n int) ([]nlp.Turn, error)
	Append(ctx context.Context, traceID string, turn nlp.Turn) error
	RecordOutcomes(ctx context.Context, traceID string, outcomes []commands.Outcome) error
}

// Reply is the result of handling one utterance.
type Reply struct {
	TraceID  string             `json:"trace_id"`
	Labels   []string           `json:"labels"`
	Outcomes []commands.Outcome `json:"outcomes"`
	// Text is the combined answer shown (or spoken) to the user.
	Text string `json:"text"`
	// Exit is set when an exit command succeeded.
	Exit bool `json:"exit,omitempty"`
}

// Assistant runs the classify → dispatch → remember pipeline.
type Assistant struct {
	classifier Classifier
	dispatcher Dispatcher
	history    History
	window     int
	logger     *slog.Logger
}

// NewAssistant wires the pipeline. history may be nil, in which case no
// context is loaded and nothing is persisted.
func NewAssistant(c Classifier, d Dispatcher, history History, window int, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{classifier: c, dispatcher: d, history: history, window: window, logger: logger}
}

// Handle processes one utterance end to end. Action failures are reported
// in Reply.Outcomes; only blank input returns an error.
func (a *Assistant) Handle(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyUtterance
	}
	ctx, traceID := trace.Ensure(ctx)
	log := observability.WithTrace(ctx, a.logger)

	var past []nlp.Turn
	if a.history != nil && a.window > 0 {
		var err error
		if past, err = a.history.Recent(ctx, a.window); err != nil {
			log.Warn("could not load history", "err", err)
		}
	}

	labels := a.classifier.Classify(ctx, nlp.Utterance{Text: text, History: past})
	log.Info("utterance classified", "labels", labels)

	outcomes := a.dispatcher.Dispatch(actions.WithHistory(ctx, past), labels)

	reply := &Reply{
		TraceID:  traceID,
		Labels:   labels,
		Outcomes: outcomes,
		Text:     summarize(outcomes),
	}
	for _, o := range outcomes {
		if o.Verb == commands.VerbExit && o.OK() {
			reply.Exit = true
		}
	}
	log.Info("utterance handled", "actions", len(outcomes), "succeeded", commands.Succeeded(outcomes))

	a.remember(ctx, log, traceID, text, reply)
	return reply, nil
}

// remember persists the exchange. Failures are logged, never returned.
func (a *Assistant) remember(ctx context.Context, log *slog.Logger, traceID, text string, reply *Reply) {
	if a.history == nil {
		return
	}
	if err := a.history.Append(ctx, traceID, nlp.Turn{Role: nlp.RoleUser, Content: text}); err != nil {
		log.Warn("could not store user turn", "err", err)
	}
	if err := a.history.Append(ctx, traceID, nlp.Turn{Role: nlp.RoleAssistant, Content: reply.Text}); err != nil {
		log.Warn("could not store assistant turn", "err", err)
	}
	if err := a.history.RecordOutcomes(ctx, traceID, reply.Outcomes); err != nil {
		log.Warn("could not store outcomes", "err", err)
	}
}

// summarize joins the details of succeeded outcomes. When nothing succeeded
// it reports the failures instead.
func summarize(outcomes []commands.Outcome) string {
	var ok, failed []string
	for _, o := range outcomes {
		if o.OK() {
			if d := strings.TrimSpace(o.Detail); d != "" {
				ok = append(ok, d)
			}
		} else {
			failed = append(failed, o.Label+": "+o.Detail)
		}
	}
	switch {
	case len(ok) > 0:
		return strings.Join(ok, "\n")
	case len(failed) > 0:
		return "Sorry, I couldn't do that. " + strings.Join(failed, "; ")
	default:
		return "Done."
	}
}
