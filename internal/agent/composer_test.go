package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/affect"
	"github.com/xkilldash9x/resonance/internal/gate"
	"github.com/xkilldash9x/resonance/internal/llmutil"
	"github.com/xkilldash9x/resonance/internal/mocks"
)

func composeEvaluation(decision schemas.DecisionType) *gate.Evaluation {
	return &gate.Evaluation{
		Stimulus:       schemas.Stimulus{ExternalID: "st-1", AuthorID: "alice", Text: "what if embeddings dream?"},
		Classification: affect.Classification{State: schemas.StatePlayful, Intensity: 0.6},
		Decision:       schemas.Decision{Type: decision, TargetID: "st-1"},
	}
}

func TestComposer_Compose(t *testing.T) {
	llm := mocks.NewMockLLMClient()
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierPowerful &&
			req.Options.ForceJSONFormat &&
			containsAll(req.SystemPrompt, "playful", "Stay under 120 characters") &&
			containsAll(req.UserPrompt, "@alice", "what if embeddings dream?")
	})).Return("```json\n{\"content\": \"  only on GPUs with nice dreams  \"}\n```", nil).Once()

	got, err := NewComposer(llm, 120).Compose(context.Background(), composeEvaluation(schemas.DecisionReply))
	require.NoError(t, err)
	assert.Equal(t, "only on GPUs with nice dreams", got)
	llm.AssertExpectations(t)
}

func TestComposer_RejectsBadOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"empty content", `{"content": "   "}`, nil},
		{"extra field", `{"content": "hi", "mood": "happy"}`, nil},
		{"prose", "Here is a reply: hi", nil},
		{"model error", "", errors.New("quota")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := mocks.NewMockLLMClient()
			llm.On("Generate", mock.Anything, mock.Anything).Return(tt.raw, tt.err).Once()

			_, err := NewComposer(llm, 0).Compose(context.Background(), composeEvaluation(schemas.DecisionOriginalPost))
			require.Error(t, err)
			if tt.err == nil {
				assert.ErrorIs(t, err, llmutil.ErrUnparseable)
			} else {
				assert.ErrorContains(t, err, "failed to generate content")
			}
		})
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
