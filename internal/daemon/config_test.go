package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigResolvesEnv(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "tok-123")
	t.Setenv("TEST_PG_URL", "postgres://u:p@h:5432/db")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"name": "glados",
		"telegram": {"token": "$TEST_BOT_TOKEN", "chat_id": 1234},
		"postgres_url": "$TEST_PG_URL"
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "tok-123" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.PostgresURL != "postgres://u:p@h:5432/db" {
		t.Errorf("postgres_url = %q", cfg.PostgresURL)
	}
	if cfg.Telegram.ChatID != 1234 {
		t.Errorf("chat_id = %d", cfg.Telegram.ChatID)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"telegram": {"chat_id": 1}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ReminderSpec != "11 17 * * *" {
		t.Errorf("reminder_spec = %q", cfg.ReminderSpec)
	}
	if cfg.StatePath == "" {
		t.Error("state_path default missing")
	}
}

func TestResolveEnvPassthrough(t *testing.T) {
	if got := resolveEnv("plain-value"); got != "plain-value" {
		t.Errorf("resolveEnv = %q", got)
	}
	if got := resolveEnv("$DEFINITELY_NOT_SET_XYZ"); got != "$DEFINITELY_NOT_SET_XYZ" {
		t.Errorf("unset var should pass through, got %q", got)
	}
}
