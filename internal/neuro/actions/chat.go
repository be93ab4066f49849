package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

const (
	chatMaxTokens    = 250
	chatTemperature  = 0.6
	contentMaxTokens = 2048

	// ApologyText is the answer given when the model produces nothing twice.
	ApologyText = "I'm unable to generate a response right now."
)

// realtimeInformation renders the current date and time for the model.
func realtimeInformation(now time.Time) string {
	return fmt.Sprintf("Use this only when needed.\nDay: %s, Date: %s, Time: %s.\n",
		now.Format("Monday"), now.Format("02 January 2006"), now.Format("15:04:05"))
}

func (h *handlers) systemMessage() string {
	return fmt.Sprintf(`You are %s, a helpful AI assistant.
User is %s.
Rules:
- Reply only in English.
- Keep answers short.
- Do not mention time unless asked.
- Do not mention training data.
`, h.Persona.AssistantName, h.Persona.Username)
}

// chatTranscript renders history as "USER:/ASSISTANT:" lines followed by
// the new query.
func chatTranscript(history []nlp.Turn, query string) string {
	var sb strings.Builder
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(t.Role)), t.Content)
	}
	fmt.Fprintf(&sb, "USER: %s\nASSISTANT:", query)
	return sb.String()
}

// answer runs req and, if the model returns nothing, one simplified retry.
// Empty output after the retry yields ApologyText. Transport errors fail.
func (h *handlers) answer(ctx context.Context, req nlp.CompletionRequest, query string) (string, error) {
	resp, err := h.Completer.Complete(ctx, req)
	if err == nil {
		return resp.Text, nil
	}
	if !errors.Is(err, nlp.ErrEmptyCompletion) {
		return "", err
	}

	h.Logger.Debug("empty answer, retrying with a simplified prompt")
	resp, err = h.Completer.Complete(ctx, nlp.CompletionRequest{
		System:    req.System,
		Prompt:    "Answer briefly: " + query,
		MaxTokens: req.MaxTokens,
		Grounded:  req.Grounded,
	})
	switch {
	case err == nil:
		return resp.Text, nil
	case errors.Is(err, nlp.ErrEmptyCompletion):
		return ApologyText, nil
	default:
		return "", err
	}
}

func (h *handlers) general(ctx context.Context, cmd commands.Command) (string, error) {
	history := nlp.LastTurns(HistoryFrom(ctx), nlp.DefaultHistoryWindow)
	return h.answer(ctx, nlp.CompletionRequest{
		System:      h.systemMessage() + realtimeInformation(h.Now()),
		Prompt:      chatTranscript(history, cmd.Argument),
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
	}, cmd.Argument)
}

func (h *handlers) realtime(ctx context.Context, cmd commands.Command) (string, error) {
	history := nlp.LastTurns(HistoryFrom(ctx), nlp.DefaultHistoryWindow)
	return h.answer(ctx, nlp.CompletionRequest{
		System: h.systemMessage() + realtimeInformation(h.Now()) +
			"Answer with current, factual information from the web search results.\n",
		Prompt:      chatTranscript(history, cmd.Argument),
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
		Grounded:    true,
	}, cmd.Argument)
}

// content drafts a document, writes it to the data directory and opens it.
func (h *handlers) content(ctx context.Context, cmd commands.Command) (string, error) {
	topic := cmd.Argument
	resp, err := h.Completer.Complete(ctx, nlp.CompletionRequest{
		System:    h.systemMessage(),
		Prompt:    "Write a fully formatted, grammatically correct and professional document about: " + topic,
		MaxTokens: contentMaxTokens,
	})
	var text string
	switch {
	case err == nil:
		text = resp.Text
	case ctx.Err() != nil:
		return "", err
	default:
		h.Logger.Warn("content generation failed, writing notice", "topic", topic, "err", err)
		text = "Unable to auto-generate detailed content for: " + topic + ". Please refine the topic."
	}

	path := filepath.Join(h.DataDir, fileStem(topic)+".txt")
	if err := os.MkdirAll(h.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if h.Launcher != nil {
		if err := h.Launcher.OpenFile(ctx, path); err != nil {
			h.Logger.Warn("could not open document", "path", path, "err", err)
		}
	}
	return "Wrote " + path + ".", nil
}

// fileStem turns free text into a safe file name stem: spaces become
// underscores and anything outside letters, digits, '-' and '_' is dropped.
func fileStem(s string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == ' ':
			sb.WriteByte('_')
		case r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		}
	}
	stem := sb.String()
	if runes := []rune(stem); len(runes) > 80 {
		stem = string(runes[:80])
	}
	if stem == "" {
		stem = "untitled"
	}
	return stem
}
