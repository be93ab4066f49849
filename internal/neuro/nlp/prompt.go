package nlp

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Utterance is a single user input plus its conversational context.
type Utterance struct {
	Text string
	// History is ordered chronologically, oldest first.
	History []Turn
}

// DefaultHistoryWindow is the number of prior turns shown to the model.
const DefaultHistoryWindow = 8

// VerbHint describes a verb for the classification prompt.
type VerbHint struct {
	Verb commands.Verb
	// Arg is the argument placeholder, empty for verbs without one.
	Arg string
}

// Catalogue is the ordered list of verbs presented to the model.
type Catalogue []VerbHint

// DefaultCatalogue lists the closed verb set with argument placeholders.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		{Verb: commands.VerbLearningRecommender, Arg: "topic"},
		{Verb: commands.VerbGeneral, Arg: "query"},
		{Verb: commands.VerbRealtime, Arg: "query"},
		{Verb: commands.VerbOpen, Arg: "app"},
		{Verb: commands.VerbClose, Arg: "app"},
		{Verb: commands.VerbPlay, Arg: "song"},
		{Verb: commands.VerbGenerateImage, Arg: "prompt"},
		{Verb: commands.VerbGoogleSearch, Arg: "query"},
		{Verb: commands.VerbYoutubeSearch, Arg: "query"},
		{Verb: commands.VerbContent, Arg: "topic"},
		{Verb: commands.VerbReminder, Arg: "datetime message"},
		{Verb: commands.VerbSystem, Arg: "command"},
		{Verb: commands.VerbIoT, Arg: "device state"},
		{Verb: commands.VerbExit},
	}
}

func (c Catalogue) String() string {
	var sb strings.Builder
	for _, h := range c {
		sb.WriteString("- ")
		sb.WriteString(string(h.Verb))
		if h.Arg != "" {
			fmt.Fprintf(&sb, " (%s)", h.Arg)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// example is a few-shot pair shown in the system prompt.
type example struct {
	in, out string
}

var fewShot = []example{
	{"how do I learn python?", "learning-recommender python"},
	{"who is Albert Einstein?", "general who is albert einstein?"},
	{"what is the weather in Paris today?", "realtime weather in paris today"},
	{"open youtube", "open youtube"},
	{"turn on the lights", "iot light on"},
	{"turn on the lights and open chrome", "iot light on, open chrome"},
	{"open facebook and close whatsapp", "open facebook, close whatsapp"},
	{"play despacito", "play despacito"},
	{"mute the volume", "system mute"},
	{"bye", "exit"},
}

const systemPromptTemplate = `You are a Decision-Making Model. Do NOT answer questions directly.

Label the user's query with one or more of these functions:

%s
Rules:
- Return ONLY labels. Do not explain. No full sentences.
- When the query asks for several things, return one label per task separated by commas, in the order they were asked.
- iot labels are exactly "iot <device> <state>"; known devices: light, fan, plug, ac; states: on, off.
- If no other function fits, use "general <query>".

Examples:
%s`

// BuildSystemPrompt renders the classification instruction block.
func BuildSystemPrompt(catalogue Catalogue) string {
	var ex strings.Builder
	for _, e := range fewShot {
		fmt.Fprintf(&ex, "%q → %s\n", e.in, e.out)
	}
	return fmt.Sprintf(systemPromptTemplate, catalogue.String(), ex.String())
}

// RenderTranscript renders history followed by the new user text as a
// "User: … / Assistant: …" transcript ending with an open assistant turn.
func RenderTranscript(history []Turn, text string) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("History:\n")
		for _, t := range history {
			if t.Role == RoleAssistant {
				sb.WriteString("Assistant: ")
			} else {
				sb.WriteString("User: ")
			}
			sb.WriteString(oneLine(t.Content))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("User: ")
	sb.WriteString(oneLine(text))
	sb.WriteString("\nAssistant:")
	return sb.String()
}

// LastTurns returns at most n turns from the end of history.
func LastTurns(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
