package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVikunjaCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" || r.URL.Path != "/api/v1/projects/3/tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("auth = %q", auth)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(Task{ID: 11, Title: payload["title"].(string)})
	}))
	defer srv.Close()

	v := NewVikunja(srv.URL, "tok", 3)
	task, err := v.CreateTask(context.Background(), "water the plants")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID != 11 || task.Title != "water the plants" {
		t.Errorf("task = %+v", task)
	}
}

func TestVikunjaPendingTasksAndProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/tasks/all"):
			if got := r.URL.Query().Get("filter"); got != "done=false" {
				t.Errorf("filter = %q", got)
			}
			json.NewEncoder(w).Encode([]Task{{ID: 1, Title: "feed the cat"}})
		case r.URL.Path == "/api/v1/projects":
			json.NewEncoder(w).Encode([]Project{{ID: 3, Title: "Chores"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	v := NewVikunja(srv.URL, "tok", 3)

	tasks, err := v.PendingTasks(context.Background())
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "feed the cat" {
		t.Errorf("tasks = %+v", tasks)
	}

	projects, err := v.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].Title != "Chores" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != "No pending tasks." {
		t.Errorf("empty summary = %q", got)
	}
	got := Summarize([]Task{
		{Title: "feed the cat"},
		{Title: "defrag the turrets", DueDate: "2025-08-18T17:00:00Z"},
	})
	if !strings.Contains(got, "- feed the cat") || !strings.Contains(got, "due 2025-08-18") {
		t.Errorf("summary = %q", got)
	}
}

func TestHomeAssistantConverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversation/process" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"response":{"speech":{"plain":{"speech":"Turned on the lights"}}}}`))
	}))
	defer srv.Close()

	ha := NewHomeAssistant(srv.URL, "tok", "", "glados")
	speech, err := ha.Converse(context.Background(), "turn on the lights")
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if speech != "Turned on the lights" {
		t.Errorf("speech = %q", speech)
	}
}

func TestHomeAssistantSpeak(t *testing.T) {
	var gotEngine, gotVoice string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tts_get_url":
			var payload struct {
				EngineID string            `json:"engine_id"`
				Options  map[string]string `json:"options"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			gotEngine = payload.EngineID
			gotVoice = payload.Options["voice"]
			json.NewEncoder(w).Encode(map[string]string{"path": "/api/tts_proxy/abc.mp3"})
		case "/api/tts_proxy/abc.mp3":
			w.Write([]byte("mp3-bytes"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	ha := NewHomeAssistant(srv.URL, "tok", "", "glados")
	audio, err := ha.Speak(context.Background(), "hello human")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if gotEngine != "tts.piper" || gotVoice != "glados" {
		t.Errorf("engine/voice = %q/%q", gotEngine, gotVoice)
	}
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		results := make([]SearchResult, 10)
		for i := range results {
			results[i] = SearchResult{Title: "hit", URL: "https://example.com"}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	s := NewSearch(srv.URL, 3)
	results, err := s.Search(context.Background(), "weather")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("len = %d, want 3", len(results))
	}
}

func TestRenderResults(t *testing.T) {
	if got := RenderResults(nil); got != "No results found." {
		t.Errorf("empty render = %q", got)
	}
	got := RenderResults([]SearchResult{
		{Title: "Weather", URL: "https://example.com/w", Content: "Sunny, 25C"},
	})
	for _, want := range []string{"Weather", "https://example.com/w", "Sunny, 25C"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q: %q", want, got)
		}
	}
}
