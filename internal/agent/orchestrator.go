// Package agent routes free-form messages to the right tool and renders
// the final persona reply.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/glados-labs/glados/internal/llm"
)

// Intent is the tool lane a message should be handled on.
type Intent string

const (
	IntentHome   Intent = "home_assistant"
	IntentSearch Intent = "web_search"
	IntentTasks  Intent = "tasks"
	IntentNone   Intent = "none"
)

const classifierSystemPrompt = `You are an intent classifier for a home assistant bot.
Given a user message, answer with exactly one of these labels and nothing else:

home_assistant - controlling or querying smart home devices (lights, switches, sensors, temperature, climate)
web_search - questions about current events, facts, weather forecasts, anything needing fresh information
tasks - creating, listing, or checking todo items, reminders, chores, shopping lists
none - chit-chat, opinions, or anything the assistant can answer from its own knowledge`

// Orchestrator decides which tool lane handles a message. It asks the
// classifier model and falls back to keyword heuristics when the model
// is unavailable or answers with something unexpected.
type Orchestrator struct {
	provider llm.Provider
	model    string
}

func NewOrchestrator(provider llm.Provider, model string) *Orchestrator {
	return &Orchestrator{provider: provider, model: model}
}

// Classify returns the intent for a message. It never fails: on provider
// errors it degrades to the heuristic pass.
func (o *Orchestrator) Classify(ctx context.Context, text string) Intent {
	if o.provider != nil {
		resp, err := o.provider.Complete(ctx, llm.CompletionRequest{
			Messages:  []llm.Message{{Role: "user", Content: text}},
			Model:     o.model,
			MaxTokens: 16,
			System:    classifierSystemPrompt,
		})
		if err == nil {
			if intent, ok := parseIntent(resp.Content); ok {
				return intent
			}
			slog.Warn("classifier returned unknown label, using heuristics",
				"label", strings.TrimSpace(resp.Content))
		} else {
			slog.Warn("classifier unavailable, using heuristics", "error", err)
		}
	}
	return classifyHeuristic(text)
}

func parseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentHome:
		return IntentHome, true
	case IntentSearch:
		return IntentSearch, true
	case IntentTasks:
		return IntentTasks, true
	case IntentNone:
		return IntentNone, true
	}
	return IntentNone, false
}

// classifyHeuristic routes by keyword when no classifier model is reachable.
func classifyHeuristic(s string) Intent {
	s = strings.ToLower(s)

	homeSignals := []string{
		"light", "lights", "lamp", "switch on", "switch off",
		"turn on", "turn off", "thermostat", "temperature in",
		"heating", "climate", "vacuum", "blinds",
	}
	for _, sig := range homeSignals {
		if strings.Contains(s, sig) {
			return IntentHome
		}
	}

	taskSignals := []string{
		"todo", "to-do", "task", "remind me", "reminder",
		"shopping list", "add to my list", "what do i have to do",
	}
	for _, sig := range taskSignals {
		if strings.Contains(s, sig) {
			return IntentTasks
		}
	}

	searchSignals := []string{
		"search", "look up", "google", "weather", "news",
		"what is the", "who is", "when is", "latest",
	}
	for _, sig := range searchSignals {
		if strings.Contains(s, sig) {
			return IntentSearch
		}
	}

	return IntentNone
}
