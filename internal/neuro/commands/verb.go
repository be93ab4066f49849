// Package commands turns classifier labels into typed commands and runs them
// against a registry of action handlers.
//
// The flow for one utterance is:
//
//	labels → Parse (per label) → Registry.Resolve (per command) → Executor.Dispatch
//
// Parsing uses a deterministic longest-match rule over a closed verb table,
// so call sites never inspect label strings themselves.
package commands

import (
	"strings"
)

// Verb is the canonical name of an action in the closed verb set.
type Verb string

const (
	VerbExit                Verb = "exit"
	VerbGeneral             Verb = "general"
	VerbRealtime            Verb = "realtime"
	VerbOpen                Verb = "open"
	VerbClose               Verb = "close"
	VerbPlay                Verb = "play"
	VerbGenerateImage       Verb = "generate image"
	VerbSystem              Verb = "system"
	VerbContent             Verb = "content"
	VerbGoogleSearch        Verb = "google search"
	VerbYoutubeSearch       Verb = "youtube search"
	VerbReminder            Verb = "reminder"
	VerbIoT                 Verb = "iot"
	VerbLearningRecommender Verb = "learning-recommender"
)

// argRule describes how many argument tokens a verb accepts.
type argRule int

const (
	// argNone: the verb takes no argument; trailing text is discarded.
	argNone argRule = iota
	// argText: the verb needs a non-empty free-text argument.
	argText
	// argDevice: exactly two tokens, "<device> <state>".
	argDevice
)

type verbSpec struct {
	verb Verb
	// aliases are alternative spellings the classifier is known to emit.
	aliases []string
	rule    argRule
}

// verbTable is the closed verb set in catalogue order. It is never mutated.
var verbTable = []verbSpec{
	{verb: VerbExit, rule: argNone},
	{verb: VerbGeneral, rule: argText},
	{verb: VerbRealtime, rule: argText},
	{verb: VerbOpen, rule: argText},
	{verb: VerbClose, rule: argText},
	{verb: VerbPlay, rule: argText},
	{verb: VerbGenerateImage, rule: argText},
	{verb: VerbSystem, rule: argText},
	{verb: VerbContent, rule: argText},
	{verb: VerbGoogleSearch, rule: argText},
	{verb: VerbYoutubeSearch, rule: argText},
	{verb: VerbReminder, rule: argText},
	{verb: VerbIoT, rule: argDevice},
	{verb: VerbLearningRecommender, aliases: []string{"learningrecommender", "learning recommender"}, rule: argText},
}

// Verbs returns the canonical verbs in catalogue order.
func Verbs() []Verb {
	out := make([]Verb, len(verbTable))
	for i, s := range verbTable {
		out[i] = s.verb
	}
	return out
}

// VerbTokens returns every spelling (canonical names and aliases) that may
// start a valid label. The classifier filters on these.
func VerbTokens() []string {
	var out []string
	for _, s := range verbTable {
		out = append(out, string(s.verb))
		out = append(out, s.aliases...)
	}
	return out
}

// Valid reports whether v belongs to the closed verb set.
func (v Verb) Valid() bool {
	_, ok := lookupSpec(v)
	return ok
}

func lookupSpec(v Verb) (verbSpec, bool) {
	for _, s := range verbTable {
		if s.verb == v {
			return s, true
		}
	}
	return verbSpec{}, false
}

// MatchVerb finds the longest verb spelling that starts label on a word
// boundary, case-insensitively. Whitespace runs in label are collapsed to a
// single space first. It returns the canonical verb and the remainder of the
// label.
//
// "google search cats" matches VerbGoogleSearch (not a hypothetical "google"),
// and "opening" does not match VerbOpen.
func MatchVerb(label string) (Verb, string, bool) {
	label = normalizeSpace(label)

	var (
		best    verbSpec
		bestLen int
		found   bool
	)
	for _, s := range verbTable {
		for _, tok := range append([]string{string(s.verb)}, s.aliases...) {
			if len(tok) <= bestLen || !hasWordPrefix(label, tok) {
				continue
			}
			best, bestLen, found = s, len(tok), true
		}
	}
	if !found {
		return "", "", false
	}
	return best.verb, strings.TrimSpace(label[bestLen:]), true
}

// hasWordPrefix reports whether s starts with tok (ASCII case-insensitive)
// followed by end of string or a space. s must be space-normalised.
func hasWordPrefix(s, tok string) bool {
	if len(s) < len(tok) || !strings.EqualFold(s[:len(tok)], tok) {
		return false
	}
	return len(s) == len(tok) || s[len(tok)] == ' '
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
