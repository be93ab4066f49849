package actions

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

//go:embed schema/learning_plan.json
var learningPlanSchemaJSON string

var learningPlanSchema = jsonschema.MustCompileString("learning_plan.json", learningPlanSchemaJSON)

// LearningPlan is the structured study plan returned by the model.
type LearningPlan struct {
	Topic   string         `json:"topic"`
	Level   string         `json:"level"`
	Summary string         `json:"summary"`
	Steps   []LearningStep `json:"steps"`
}

// LearningStep is one stage of a LearningPlan.
type LearningStep struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Resources   []LearningResource `json:"resources"`
}

// LearningResource is a book, course, video or site recommended for a step.
type LearningResource struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Kind  string `json:"kind"`
}

const learningPrompt = `Recommend a study plan for: %s

Respond ONLY with a JSON object, no markdown, matching this shape:
{"topic": string, "level": "beginner"|"intermediate"|"advanced", "summary": string,
 "steps": [{"title": string, "description": string,
            "resources": [{"title": string, "url": string, "kind": "book"|"course"|"video"|"article"|"website"|"practice"}]}]}
Use between 3 and 8 steps.`

// ParseLearningPlan extracts the JSON object from a completion, validates it
// against the learning plan schema and decodes it.
func ParseLearningPlan(completion string) (*LearningPlan, error) {
	raw := extractJSONObject(completion)
	if raw == "" {
		return nil, fmt.Errorf("learning plan: no JSON object in model output")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("learning plan: %w", err)
	}
	if err := learningPlanSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("learning plan: %w", err)
	}

	var plan LearningPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("learning plan: %w", err)
	}
	return &plan, nil
}

// extractJSONObject returns the outermost {...} span of s, tolerating code
// fences and surrounding prose.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Render formats the plan as readable text.
func (p *LearningPlan) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Study plan for %s (%s)\n%s\n", p.Topic, p.Level, p.Summary)
	for i, s := range p.Steps {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s\n", i+1, s.Title, s.Description)
		for _, r := range s.Resources {
			if r.URL != "" {
				fmt.Fprintf(&sb, "   - [%s] %s <%s>\n", r.Kind, r.Title, r.URL)
			} else {
				fmt.Fprintf(&sb, "   - [%s] %s\n", r.Kind, r.Title)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *handlers) learning(ctx context.Context, cmd commands.Command) (string, error) {
	resp, err := h.Completer.Complete(ctx, nlp.CompletionRequest{
		System:      "You are an expert learning advisor. You answer only with JSON.",
		Prompt:      fmt.Sprintf(learningPrompt, cmd.Argument),
		MaxTokens:   contentMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	plan, err := ParseLearningPlan(resp.Text)
	if err != nil {
		return "", err
	}
	return plan.Render(), nil
}
