// Package tools provides the external service integrations the assistant
// can route a message to: Vikunja tasks, Home Assistant, and web search.
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

// VikunjaClient talks to a Vikunja instance's REST API.
type VikunjaClient struct {
	baseURL   string
	token     string
	projectID int
	client    *http.Client
}

// NewVikunja creates a Vikunja API client. projectID is the project new
// tasks land in.
func NewVikunja(baseURL, token string, projectID int) *VikunjaClient {
	return &VikunjaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		projectID: projectID,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Task is a Vikunja task as returned by the API.
type Task struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Done    bool   `json:"done"`
	DueDate string `json:"due_date,omitempty"`
}

// CreateTask adds a task to the configured project.
func (v *VikunjaClient) CreateTask(ctx context.Context, title string) (*Task, error) {
	payload := map[string]interface{}{"title": title}
	body, _ := json.Marshal(payload)

	resp, err := v.doRequest(ctx, "PUT", fmt.Sprintf("/api/v1/projects/%d/tasks", v.projectID), body)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	var task Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return nil, fmt.Errorf("parse task: %w", err)
	}

	slog.Info("task created", "id", task.ID, "title", task.Title)
	return &task, nil
}

// Project is a Vikunja project.
type Project struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ListProjects returns the projects visible to the token.
func (v *VikunjaClient) ListProjects(ctx context.Context) ([]Project, error) {
	resp, err := v.doRequest(ctx, "GET", "/api/v1/projects", nil)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var projects []Project
	if err := json.Unmarshal(resp, &projects); err != nil {
		return nil, fmt.Errorf("parse projects: %w", err)
	}
	return projects, nil
}

// PendingTasks returns all not-done tasks across projects.
func (v *VikunjaClient) PendingTasks(ctx context.Context) ([]Task, error) {
	resp, err := v.doRequest(ctx, "GET", "/api/v1/tasks/all?filter=done%3Dfalse", nil)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	return tasks, nil
}

// Summarize renders a task list as plain text for the responder.
func Summarize(tasks []Task) string {
	if len(tasks) == 0 {
		return "No pending tasks."
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s", t.Title)
		if t.DueDate != "" && !strings.HasPrefix(t.DueDate, "0001-") {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (v *VikunjaClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+v.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
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
