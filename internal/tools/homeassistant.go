package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HomeAssistantClient talks to a Home Assistant instance: the conversation
// API for device commands and the TTS API for voice replies.
type HomeAssistantClient struct {
	baseURL string
	token   string
	engine  string
	voice   string
	client  *http.Client
}

// NewHomeAssistant creates a Home Assistant API client. engine and voice
// select the TTS output (e.g. "tts.piper" / "glados").
func NewHomeAssistant(baseURL, token, engine, voice string) *HomeAssistantClient {
	if engine == "" {
		engine = "tts.piper"
	}
	return &HomeAssistantClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		engine:  engine,
		voice:   voice,
		client: &http.Client{
			Timeout: 60 * time.Second, // TTS synthesis can be slow
		},
	}
}

// Converse sends natural language to the conversation API and returns the
// spoken response text.
func (ha *HomeAssistantClient) Converse(ctx context.Context, text string) (string, error) {
	payload := map[string]interface{}{
		"text":     text,
		"language": "en",
	}
	body, _ := json.Marshal(payload)

	resp, err := ha.doRequest(ctx, "POST", "/api/conversation/process", body)
	if err != nil {
		return "", fmt.Errorf("conversation: %w", err)
	}

	var convResp struct {
		Response struct {
			Speech struct {
				Plain struct {
					Speech string `json:"speech"`
				} `json:"plain"`
			} `json:"speech"`
		} `json:"response"`
	}
	if err := json.Unmarshal(resp, &convResp); err != nil {
		return "", fmt.Errorf("parse conversation response: %w", err)
	}

	speech := convResp.Response.Speech.Plain.Speech
	slog.Info("home assistant responded", "speech", truncateStr(speech, 100))
	return speech, nil
}

// Speak synthesizes text through the configured TTS engine and returns
// the audio bytes (mp3).
func (ha *HomeAssistantClient) Speak(ctx context.Context, text string) ([]byte, error) {
	payload := map[string]interface{}{
		"engine_id": ha.engine,
		"message":   text,
	}
	if ha.voice != "" {
		payload["options"] = map[string]string{"voice": ha.voice}
	}
	body, _ := json.Marshal(payload)

	resp, err := ha.doRequest(ctx, "POST", "/api/tts_get_url", body)
	if err != nil {
		return nil, fmt.Errorf("tts url: %w", err)
	}

	var urlResp struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(resp, &urlResp); err != nil {
		return nil, fmt.Errorf("parse tts response: %w", err)
	}
	if urlResp.Path == "" && urlResp.URL == "" {
		return nil, fmt.Errorf("tts returned no audio path")
	}

	// Prefer the relative path so the download goes through our base URL
	// even when HA reports an internal hostname in "url".
	audioURL := ha.baseURL + urlResp.Path
	if urlResp.Path == "" {
		audioURL = urlResp.URL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", audioURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+ha.token)

	audioResp, err := ha.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer audioResp.Body.Close()

	if audioResp.StatusCode >= 400 {
		return nil, fmt.Errorf("download audio: HTTP %d", audioResp.StatusCode)
	}

	return io.ReadAll(audioResp.Body)
}

func (ha *HomeAssistantClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, ha.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+ha.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ha.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func truncateStr(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
