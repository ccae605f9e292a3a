package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/glados-labs/glados/internal/llm"
)

// personaSystemPrompt shapes every outgoing reply. Responses are spoken
// aloud over TTS, so formatting is banned outright.
const personaSystemPrompt = `You are GLaDOS, the household AI assistant. Passive-aggressive,
dryly sarcastic, reluctantly helpful. You always complete the task correctly,
you just make sure the human knows how trivial it was.

Rules:
- Plain speech only. No markdown, no bullet points, no emoji. Your replies
  are read aloud by a speech synthesizer.
- Two or three sentences at most.
- When tool output is provided, base your answer on it. Never invent facts
  the tool output does not contain.`

// Responder turns a user message plus optional tool output into the
// persona reply that gets sent (and spoken) back.
type Responder struct {
	provider llm.Provider
	model    string
}

func NewResponder(provider llm.Provider, model string) *Responder {
	return &Responder{provider: provider, model: model}
}

// Respond renders the final reply. toolResult may be empty when no tool ran.
func (r *Responder) Respond(ctx context.Context, userText, toolResult string) (string, error) {
	content := userText
	if toolResult != "" {
		content = fmt.Sprintf("User message: %s\n\nTool output:\n%s", userText, toolResult)
	}

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: content}},
		Model:       r.model,
		MaxTokens:   512,
		Temperature: 0.8,
		System:      personaSystemPrompt,
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("empty completion from %s", r.provider.Name())
	}
	return reply, nil
}
