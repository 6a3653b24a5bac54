package gate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/config"
)

// ContentGate re-checks generated text immediately before it is posted.
// Deterministic checks run first; the model is only consulted when they pass.
type ContentGate struct {
	judge          rubricJudge
	maxLength      int
	blockedPhrases []string
}

// NewContentGate creates the post-hoc content gate.
func NewContentGate(llm schemas.LLMClient, cfg config.GatesConfig) *ContentGate {
	blocked := make([]string, 0, len(cfg.BlockedPhrases))
	for _, p := range cfg.BlockedPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			blocked = append(blocked, p)
		}
	}
	return &ContentGate{
		judge:          rubricJudge{llm: llm, tier: schemas.TierFast, rubric: ContentRubric},
		maxLength:      cfg.MaxContentLength,
		blockedPhrases: blocked,
	}
}

func (g *ContentGate) Name() string { return "content" }

func (g *ContentGate) Evaluate(ctx context.Context, ev *Evaluation) (Verdict, error) {
	if !ev.Decision.Type.CarriesContent() {
		return Verdict{Approved: true, Reason: "no generated content"}, nil
	}
	if v, ok := g.localChecks(ev.Decision.Content); !ok {
		return v, nil
	}

	var sb strings.Builder
	sb.WriteString("Judge this generated text, exactly as it will be posted.\n\n")
	describeEvaluation(&sb, ev)
	fmt.Fprintf(&sb, "Generated text: %q\n", ev.Decision.Content)
	return g.judge.judge(ctx, sb.String())
}

func (g *ContentGate) localChecks(content string) (Verdict, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Verdict{Reason: "generated content is empty", Remediation: "regenerate the text"}, false
	}
	if g.maxLength > 0 {
		if n := utf8.RuneCountInString(trimmed); n > g.maxLength {
			return Verdict{
				Reason:      fmt.Sprintf("content too long (%d > %d characters)", n, g.maxLength),
				Remediation: fmt.Sprintf("shorten to at most %d characters", g.maxLength),
			}, false
		}
	}
	lower := strings.ToLower(trimmed)
	for _, p := range g.blockedPhrases {
		if strings.Contains(lower, p) {
			return Verdict{
				Reason:      fmt.Sprintf("content contains blocked phrase %q", p),
				Remediation: "rewrite without the blocked phrase",
			}, false
		}
	}
	return Verdict{}, true
}
