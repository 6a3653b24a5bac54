package gate

import (
	"context"
	"strings"

	"github.com/xkilldash9x/resonance/api/schemas"
)

// PrincipleGate vetoes an intended action that fails any principle check.
type PrincipleGate struct {
	judge rubricJudge
}

// NewPrincipleGate creates the principle gate backed by the powerful model tier.
func NewPrincipleGate(llm schemas.LLMClient) *PrincipleGate {
	return &PrincipleGate{judge: rubricJudge{llm: llm, tier: schemas.TierPowerful, rubric: PrincipleRubric}}
}

func (g *PrincipleGate) Name() string { return "principle" }

func (g *PrincipleGate) Evaluate(ctx context.Context, ev *Evaluation) (Verdict, error) {
	var sb strings.Builder
	sb.WriteString("Judge the intent of this action before any text is written.\n\n")
	describeEvaluation(&sb, ev)
	return g.judge.judge(ctx, sb.String())
}
