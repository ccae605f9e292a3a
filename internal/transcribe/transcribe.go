// Package transcribe turns voice-note audio into text via the OpenAI
// transcription API.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Transcriber converts audio bytes to text.
type Transcriber struct {
	client openai.Client
	model  string
}

// New creates a transcriber. model defaults to gpt-4o-transcribe.
func New(apiKey, model string) *Transcriber {
	if model == "" {
		model = "gpt-4o-transcribe"
	}
	return &Transcriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Transcribe sends ogg/opus voice-note bytes and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(t.model),
		File:  openai.File(bytes.NewReader(audio), "voice.ogg", "audio/ogg"),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
