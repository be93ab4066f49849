package commands

import (
	"fmt"
	"strings"
)

// Command is the parsed form of one classifier label.
type Command struct {
	Verb Verb
	// Argument is the text after the verb. Empty for VerbExit.
	Argument string
	// Device is populated for VerbIoT only.
	Device DeviceAction
}

// DeviceAction is the structured argument of an iot command.
type DeviceAction struct {
	ID    string
	State string
}

// String renders the command back into label form.
func (c Command) String() string {
	if c.Argument == "" {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + c.Argument
}

// Parse turns a label such as "google search cats" or "iot light on" into a
// Command. The verb is selected by MatchVerb; the argument is then checked
// against the verb's arity rule.
//
// Failures are always *ParseError values wrapping ErrUnknownVerb or ErrArity.
func Parse(label string) (Command, error) {
	verb, arg, ok := MatchVerb(label)
	if !ok {
		return Command{}, &ParseError{Label: label, Reason: "no known verb at start of label", Err: ErrUnknownVerb}
	}
	spec, _ := lookupSpec(verb)

	cmd := Command{Verb: verb}
	switch spec.rule {
	case argNone:
		// "exit now" is still an exit.
	case argText:
		if arg == "" {
			return Command{}, &ParseError{
				Label:  label,
				Reason: fmt.Sprintf("%s needs an argument", verb),
				Err:    ErrArity,
			}
		}
		cmd.Argument = arg
	case argDevice:
		tokens := strings.Fields(arg)
		if len(tokens) != 2 {
			return Command{}, &ParseError{
				Label:  label,
				Reason: fmt.Sprintf("%s expects <device> <state>, got %d argument token(s)", verb, len(tokens)),
				Err:    ErrArity,
			}
		}
		cmd.Argument = arg
		cmd.Device = DeviceAction{
			ID:    strings.ToLower(tokens[0]),
			State: strings.ToLower(tokens[1]),
		}
	}
	return cmd, nil
}
