// Package actions implements the handlers bound to each verb.
//
// Every handler has the commands.Handler signature and reaches the outside
// world only through the interfaces in Deps, so tests can substitute fakes
// for the operating system, the language model, the device bridge and the
// image service.
package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

// DevicePublisher sends a state change to a named device and returns the
// payload that was accepted. *devices.Bridge implements it.
type DevicePublisher interface {
	Publish(ctx context.Context, deviceID, state string) (string, error)
}

// ImageGenerator returns raw image payloads for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([][]byte, error)
}

// Persona names the assistant and the user in chat prompts.
type Persona struct {
	AssistantName string
	Username      string
}

func (p Persona) withDefaults() Persona {
	if p.AssistantName == "" {
		p.AssistantName = "Neuro"
	}
	if p.Username == "" {
		p.Username = "User"
	}
	return p
}

// Deps are the collaborators handlers use. A nil collaborator leaves the
// verbs that need it unbound, so they settle as "no handler" outcomes.
type Deps struct {
	Launcher  Launcher
	Completer nlp.Completer
	Devices   DevicePublisher
	Images    ImageGenerator
	// DataDir receives generated documents and images.
	DataDir string
	Persona Persona
	// Now is the clock used for date/time context. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

type handlers struct {
	Deps
}

// Bindings returns one binding per verb whose dependencies are present.
// VerbReminder is never bound.
func Bindings(d Deps) []commands.Binding {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.DataDir == "" {
		d.DataDir = "data"
	}
	d.Persona = d.Persona.withDefaults()
	h := &handlers{Deps: d}

	b := []commands.Binding{{Verb: commands.VerbExit, Handler: h.exit}}
	if d.Launcher != nil {
		b = append(b,
			commands.Binding{Verb: commands.VerbOpen, Handler: h.open},
			commands.Binding{Verb: commands.VerbClose, Handler: h.close},
			commands.Binding{Verb: commands.VerbPlay, Handler: h.play},
			commands.Binding{Verb: commands.VerbGoogleSearch, Handler: h.googleSearch},
			commands.Binding{Verb: commands.VerbYoutubeSearch, Handler: h.youtubeSearch},
			commands.Binding{Verb: commands.VerbSystem, Handler: h.system},
		)
	}
	if d.Completer != nil {
		b = append(b,
			commands.Binding{Verb: commands.VerbGeneral, Handler: h.general},
			commands.Binding{Verb: commands.VerbRealtime, Handler: h.realtime},
			commands.Binding{Verb: commands.VerbContent, Handler: h.content},
			commands.Binding{Verb: commands.VerbLearningRecommender, Handler: h.learning},
		)
	}
	if d.Devices != nil {
		b = append(b, commands.Binding{Verb: commands.VerbIoT, Handler: h.iot})
	}
	if d.Images != nil {
		b = append(b, commands.Binding{Verb: commands.VerbGenerateImage, Handler: h.generateImage})
	}
	return b
}

type historyKey struct{}

// WithHistory attaches the conversation history (chronological) to ctx for
// handlers that answer in context.
func WithHistory(ctx context.Context, history []nlp.Turn) context.Context {
	return context.WithValue(ctx, historyKey{}, history)
}

// HistoryFrom returns the history attached by WithHistory, or nil.
func HistoryFrom(ctx context.Context) []nlp.Turn {
	h, _ := ctx.Value(historyKey{}).([]nlp.Turn)
	return h
}

func (h *handlers) exit(context.Context, commands.Command) (string, error) {
	return "Goodbye, " + h.Persona.Username + "!", nil
}
