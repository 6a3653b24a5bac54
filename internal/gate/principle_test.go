package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/llmutil"
	"github.com/xkilldash9x/resonance/internal/mocks"
)

const allPass = `{"checks":[
{"name":"truthfulness","passed":true,"note":""},
{"name":"value_add","passed":true,"note":""},
{"name":"self_consistency","passed":true,"note":""},
{"name":"genuine_interest","passed":true,"note":""}],
"summary":"on topic and sincere"}`

func isPrincipleRequest(req schemas.GenerationRequest) bool {
	return req.Tier == schemas.TierPowerful && req.Options.ForceJSONFormat
}

func TestPrincipleGate_Approves(t *testing.T) {
	llm := mocks.NewMockLLMClient()
	llm.On("Generate", mock.Anything, mock.MatchedBy(isPrincipleRequest)).Return(allPass, nil).Once()

	v, err := NewPrincipleGate(llm).Evaluate(context.Background(), newEvaluation(schemas.DecisionReply))
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.Equal(t, "on topic and sincere", v.Reason)
	llm.AssertExpectations(t)
}

func TestPrincipleGate_FailedCheckVetoes(t *testing.T) {
	llm := mocks.NewMockLLMClient()
	resp := `{"checks":[
{"name":"truthfulness","passed":true,"note":""},
{"name":"value_add","passed":false,"note":"adds nothing beyond agreement"},
{"name":"self_consistency","passed":true,"note":""},
{"name":"genuine_interest","passed":true,"note":""}],
"summary":"low value"}`
	llm.On("Generate", mock.Anything, mock.Anything).Return(resp, nil).Once()

	v, err := NewPrincipleGate(llm).Evaluate(context.Background(), newEvaluation(schemas.DecisionReply))
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.Equal(t, "failed checks: value_add", v.Reason)
	assert.Equal(t, "value_add: adds nothing beyond agreement", v.Remediation)
}

func TestPrincipleGate_MalformedResponsesError(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "Looks fine to me!"},
		{"missing check", `{"checks":[{"name":"truthfulness","passed":true,"note":""}],"summary":"x"}`},
		{"missing passed", `{"checks":[{"name":"truthfulness","note":""}],"summary":"x"}`},
		{"unknown field", `{"checks":[],"summary":"x","score":9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := mocks.NewMockLLMClient()
			llm.On("Generate", mock.Anything, mock.Anything).Return(tt.response, nil).Once()

			_, err := NewPrincipleGate(llm).Evaluate(context.Background(), newEvaluation(schemas.DecisionReply))
			require.Error(t, err)
			assert.ErrorIs(t, err, llmutil.ErrUnparseable)
		})
	}
}

func TestPrincipleGate_LLMErrorRejectsThroughChain(t *testing.T) {
	llm := mocks.NewMockLLMClient()
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota exhausted")).Once()

	chain := NewChain([]Gate{NewPrincipleGate(llm)}, nil, 0, newTestLogger(t))
	res := chain.Evaluate(context.Background(), newEvaluation(schemas.DecisionLike), nil)

	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "quota exhausted")
}
