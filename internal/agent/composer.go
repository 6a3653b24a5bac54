package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/resonance/api/schemas"
	"github.com/xkilldash9x/resonance/internal/gate"
	"github.com/xkilldash9x/resonance/internal/llmutil"
)

// composedContent is the only shape accepted from the composer model.
type composedContent struct {
	Content string `json:"content"`
}

func (c *composedContent) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("content must not be empty")
	}
	return nil
}

// Composer writes the text for reply, quote and original_post decisions.
type Composer struct {
	llm       schemas.LLMClient
	maxLength int
}

// NewComposer creates a composer that asks for text within maxLength characters.
func NewComposer(llm schemas.LLMClient, maxLength int) *Composer {
	return &Composer{llm: llm, maxLength: maxLength}
}

// Compose satisfies gate.ComposeFunc.
func (c *Composer) Compose(ctx context.Context, ev *gate.Evaluation) (string, error) {
	raw, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: c.systemPrompt(ev),
		UserPrompt:   c.userPrompt(ev),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.8, ForceJSONFormat: true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	out, err := llmutil.DecodeStrict[composedContent](raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}

func (c *Composer) systemPrompt(ev *gate.Evaluation) string {
	profile := ev.Classification.State.Profile()
	var sb strings.Builder
	sb.WriteString("You write short social media posts for an agent with a consistent, sincere voice.\n")
	fmt.Fprintf(&sb, "Current state: %s (%s Energy: %s.)\n", ev.Classification.State, profile.Description, profile.Energy)
	fmt.Fprintf(&sb, "Voice: %s\n", profile.Voice)
	if c.maxLength > 0 {
		fmt.Fprintf(&sb, "Stay under %d characters. ", c.maxLength)
	}
	sb.WriteString("No hashtags, no emojis unless they carry meaning, never claim to be human.\n")
	sb.WriteString(`Respond with only a JSON object of the form {"content":"<text>"}.`)
	return sb.String()
}

func (c *Composer) userPrompt(ev *gate.Evaluation) string {
	switch ev.Decision.Type {
	case schemas.DecisionReply:
		return fmt.Sprintf("Write a reply to @%s, who posted: %q", ev.Stimulus.AuthorID, ev.Stimulus.Text)
	case schemas.DecisionQuote:
		return fmt.Sprintf("Write commentary to quote this post by @%s: %q", ev.Stimulus.AuthorID, ev.Stimulus.Text)
	default:
		return fmt.Sprintf("Write an original post inspired by, but not addressed to, this post: %q", ev.Stimulus.Text)
	}
}
