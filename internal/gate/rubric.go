package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/llmutil"
)

// Check is one named rubric item.
type Check struct {
	Name        string
	Description string
}

// PrincipleRubric is the fixed intent rubric.
var PrincipleRubric = []Check{
	{"truthfulness", "The action asserts nothing false or unverifiable about the stimulus or the world."},
	{"value_add", "The action adds something for the author or readers beyond noise."},
	{"self_consistency", "The action is in character for the current emotional state and past behavior."},
	{"genuine_interest", "The agent is reacting to the content itself, not engagement farming."},
}

// ContentRubric re-checks generated text with the intent rubric plus no_harm.
var ContentRubric = append(append([]Check{}, PrincipleRubric...),
	Check{"no_harm", "The text contains nothing harassing, deceptive, unsafe or that could embarrass the author."},
)

type rubricCheck struct {
	Name   string `json:"name"`
	Passed *bool  `json:"passed"`
	Note   string `json:"note"`
}

// rubricResponse is the strict shape the model must return.
type rubricResponse struct {
	Checks  []rubricCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func (r *rubricResponse) Validate() error {
	if len(r.Checks) == 0 {
		return errors.New("checks must not be empty")
	}
	for i, c := range r.Checks {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("checks[%d].name is required", i)
		}
		if c.Passed == nil {
			return fmt.Errorf("checks[%d].passed is required", i)
		}
	}
	return nil
}

// rubricJudge asks the model to judge a prompt against a rubric and turns the
// answer into a verdict. Every required check must be present and passing.
type rubricJudge struct {
	llm    schemas.LLMClient
	tier   schemas.ModelTier
	rubric []Check
}

func (j rubricJudge) judge(ctx context.Context, subject string) (Verdict, error) {
	raw, err := j.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: j.systemPrompt(),
		UserPrompt:   subject,
		Tier:         j.tier,
		Options:      schemas.GenerationOptions{Temperature: 0.1, ForceJSONFormat: true},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to get rubric judgment: %w", err)
	}

	resp, err := llmutil.DecodeStrict[rubricResponse](raw)
	if err != nil {
		return Verdict{}, err
	}

	results := make(map[string]rubricCheck, len(resp.Checks))
	for _, c := range resp.Checks {
		results[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}

	var failed, notes []string
	for _, want := range j.rubric {
		got, ok := results[want.Name]
		if !ok {
			return Verdict{}, fmt.Errorf("%w: missing rubric check %q", llmutil.ErrUnparseable, want.Name)
		}
		if !*got.Passed {
			failed = append(failed, want.Name)
			if got.Note != "" {
				notes = append(notes, fmt.Sprintf("%s: %s", want.Name, got.Note))
			}
		}
	}

	if len(failed) > 0 {
		remediation := strings.Join(notes, "; ")
		if remediation == "" {
			remediation = "revise to satisfy " + strings.Join(failed, ", ")
		}
		return Verdict{
			Reason:      "failed checks: " + strings.Join(failed, ", "),
			Remediation: remediation,
		}, nil
	}

	reason := resp.Summary
	if reason == "" {
		reason = "all checks passed"
	}
	return Verdict{Approved: true, Reason: reason}, nil
}

func (j rubricJudge) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You review actions a social media agent is about to take. Judge the action against every check below.\n\nChecks:\n")
	for _, c := range j.rubric {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	sb.WriteString("\nRespond with only a JSON object of the form ")
	sb.WriteString(`{"checks":[{"name":"<check>","passed":true|false,"note":"<why, and how to fix if failed>"}],"summary":"<one sentence>"}`)
	sb.WriteString(". Include every check exactly once and no other fields.")
	return sb.String()
}

func describeEvaluation(sb *strings.Builder, ev *Evaluation) {
	fmt.Fprintf(sb, "Stimulus (%s by @%s): %q\n", ev.Stimulus.Type, ev.Stimulus.AuthorID, ev.Stimulus.Text)
	fmt.Fprintf(sb, "Agent state: %s at intensity %.2f (%s)\n", ev.Classification.State, ev.Classification.Intensity, ev.Classification.Reasoning)
	fmt.Fprintf(sb, "Proposed action: %s\n", ev.Decision.Type)
	if ev.Relationship != nil {
		fmt.Fprintf(sb, "History with author: %d interaction(s), vibe %.2f\n", ev.Relationship.InteractionCount, ev.Relationship.Vibe)
	} else {
		sb.WriteString("History with author: none\n")
	}
}
