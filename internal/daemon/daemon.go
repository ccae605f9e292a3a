// Package daemon wires the channel, the journal state machine, the
// assistant pipeline, and the daemon's persistent state together.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/glados-labs/glados/internal/agent"
	"github.com/glados-labs/glados/internal/llm"
	"github.com/glados-labs/glados/internal/tools"
	"github.com/glados-labs/glados/internal/transcribe"
	"github.com/glados-labs/glados/pkg/channel"
	"github.com/glados-labs/glados/pkg/journal"
	"github.com/glados-labs/glados/pkg/kv"
)

// notesPromptKeyPrefix maps a displayed notes-prompt message ref to the
// day key its entry belongs to. Resolving the day from this mapping
// instead of the clock keeps a reply filed under the right day even
// when it arrives after midnight.
const notesPromptKeyPrefix = "journal:notes-prompt:"

// Daemon is the GLaDOS assistant daemon.
type Daemon struct {
	config *Config

	channel channel.Channel
	journal *journal.Journal
	state   *kv.Store

	orchestrator *agent.Orchestrator
	responder    *agent.Responder
	transcriber  *transcribe.Transcriber

	vikunja *tools.VikunjaClient
	hass    *tools.HomeAssistantClient
	search  *tools.SearchClient

	cron *cron.Cron

	chatID    string
	healthy   bool
	startedAt time.Time
}

// New creates the daemon and constructs the assistant pipeline from config.
// The channel, journal, and state store are built by the caller so their
// lifecycles stay at the edge.
func New(cfg *Config, ch channel.Channel, jrnl *journal.Journal, state *kv.Store) (*Daemon, error) {
	if cfg.Telegram.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id is required")
	}

	d := &Daemon{
		config:    cfg,
		channel:   ch,
		journal:   jrnl,
		state:     state,
		chatID:    strconv.FormatInt(cfg.Telegram.ChatID, 10),
		startedAt: time.Now(),
	}

	if classifier := buildProvider(cfg.LLM.Classifier); classifier != nil {
		d.orchestrator = agent.NewOrchestrator(classifier, cfg.LLM.Classifier.Model)
	} else {
		d.orchestrator = agent.NewOrchestrator(nil, "")
		slog.Warn("no classifier provider configured, using keyword routing only")
	}

	if responder := buildProvider(cfg.LLM.Responder); responder != nil {
		d.responder = agent.NewResponder(responder, cfg.LLM.Responder.Model)
	} else {
		slog.Warn("no responder provider configured, assistant replies disabled")
	}

	if cfg.OpenAI.APIKey != "" {
		d.transcriber = transcribe.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	if cfg.Vikunja.Token != "" {
		d.vikunja = tools.NewVikunja(cfg.Vikunja.BaseURL, cfg.Vikunja.Token, cfg.Vikunja.ProjectID)
	}
	if cfg.HomeAssistant.Token != "" {
		d.hass = tools.NewHomeAssistant(cfg.HomeAssistant.BaseURL, cfg.HomeAssistant.Token,
			cfg.HomeAssistant.TTSEngine, cfg.HomeAssistant.TTSVoice)
	}
	if cfg.Search.BaseURL != "" {
		d.search = tools.NewSearch(cfg.Search.BaseURL, cfg.Search.MaxResults)
	}

	return d, nil
}

func buildProvider(cfg ProviderConfig) llm.Provider {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL != "" {
		return llm.NewAnthropicCompat(cfg.Provider, cfg.BaseURL, cfg.APIKey, cfg.Model)
	}
	return llm.NewAnthropic(cfg.APIKey, cfg.Model)
}

// Run starts the daemon and blocks until ctx is cancelled or the channel
// fails fatally.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("glados daemon running",
		"name", d.config.Name,
		"chat", d.chatID,
		"reminder", d.config.ReminderSpec,
	)

	if d.config.HealthAddr != "" {
		go d.serveHealth(ctx)
	}

	if err := d.startReminder(ctx); err != nil {
		slog.Warn("daily reminder disabled", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting telegram channel")
		if err := d.channel.Start(ctx, d.onMessage, d.onCallback); err != nil {
			errCh <- err
		}
	}()

	go func() {
		time.Sleep(2 * time.Second)
		d.healthy = true
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("telegram channel fatal error: %w", err)
		}
	}

	d.healthy = false
	if d.cron != nil {
		d.cron.Stop()
	}
	d.channel.Stop()

	slog.Info("glados daemon shutting down")
	return nil
}

// startReminder schedules the daily journal prompt.
func (d *Daemon) startReminder(ctx context.Context) error {
	d.cron = cron.New()
	_, err := d.cron.AddFunc(d.config.ReminderSpec, func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		slog.Info("daily reminder firing")
		d.startJournal(rctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", d.config.ReminderSpec, err)
	}
	d.cron.Start()
	return nil
}

// serveHealth exposes GET /health.
func (d *Daemon) serveHealth(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.healthy {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok","uptime":"%s"}`, time.Since(d.startedAt).Round(time.Second))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"starting"}`)
		}
	})

	srv := &http.Server{Addr: d.config.HealthAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("health endpoint listening", "addr", d.config.HealthAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Warn("health server error", "error", err)
	}
}

// ---------- Incoming events ----------

// onMessage handles free-text and voice messages.
func (d *Daemon) onMessage(ctx context.Context, msg channel.Message) error {
	if msg.IsVoice {
		text, err := d.transcribeVoice(ctx, msg)
		if err != nil {
			slog.Error("voice transcription failed", "error", err)
			d.sendText(ctx, "I couldn't make out a word of that. Try typing.")
			return nil
		}
		slog.Info("voice transcribed", "len", len(text))
		msg.Content = text
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}

	if text == "/journal" {
		d.startJournal(ctx)
		return nil
	}

	if strings.Contains(msg.ReplyToText, journal.NotesMarker) {
		return d.handleNoteReply(ctx, msg, text)
	}

	return d.handleAssistant(ctx, text)
}

// onCallback handles journal keyboard presses.
func (d *Daemon) onCallback(ctx context.Context, cb channel.Callback) error {
	next, err := d.journal.HandleSelection(ctx, cb.Token)
	if err != nil {
		slog.Error("journal selection failed", "error", err, "token", cb.Token)
		d.sendText(ctx, journal.FailureText)
		return nil
	}
	if next == nil {
		// Malformed or stale token; nothing to render.
		return nil
	}

	if err := d.channel.Edit(ctx, cb.ChatID, cb.MessageRef, *next); err != nil {
		return fmt.Errorf("edit journal prompt: %w", err)
	}

	// When the flow reaches the notes prompt, remember which day the
	// prompt message belongs to so a later reply lands on the right row.
	if strings.Contains(next.Text, journal.NotesMarker) {
		if dayKey, ok := journal.TokenDayKey(cb.Token); ok {
			if err := d.state.Set(notesPromptKeyPrefix+cb.MessageRef, dayKey); err != nil {
				slog.Warn("persisting notes-prompt mapping failed", "error", err)
			}
		}
	}

	return nil
}

// startJournal begins (or restarts) today's journal entry.
func (d *Daemon) startJournal(ctx context.Context) {
	// Pick up people added to the reference table since startup.
	if err := d.journal.ReloadPeople(ctx); err != nil {
		slog.Warn("reloading people failed, using cached snapshot", "error", err)
	}

	prompt, err := d.journal.StartEntry(ctx, time.Now())
	if err != nil {
		slog.Error("starting journal entry failed", "error", err)
		d.sendText(ctx, journal.FailureText)
		return
	}

	if _, err := d.channel.Send(ctx, d.chatID, prompt); err != nil {
		slog.Error("sending journal prompt failed", "error", err)
	}
}

// handleNoteReply files a reply-to-notes-prompt message as the entry's note.
func (d *Daemon) handleNoteReply(ctx context.Context, msg channel.Message, text string) error {
	dayKey := d.resolveNoteDay(msg.ReplyToRef)

	handled, err := d.journal.HandleReply(ctx, msg.ReplyToText, dayKey, text)
	if err != nil {
		slog.Error("saving note failed", "error", err, "day", dayKey)
		d.sendText(ctx, journal.FailureText)
		return nil
	}
	if !handled {
		return nil
	}

	d.sendText(ctx, journal.NoteSavedText)

	// Retract the prompt and the reply so the chat ends on the ack.
	if err := d.channel.Delete(ctx, msg.ChatID, msg.ReplyToRef); err != nil {
		slog.Warn("deleting notes prompt failed", "error", err)
	}
	if err := d.channel.Delete(ctx, msg.ChatID, msg.MessageRef); err != nil {
		slog.Warn("deleting note reply failed", "error", err)
	}
	if err := d.state.Delete(notesPromptKeyPrefix + msg.ReplyToRef); err != nil {
		slog.Warn("clearing notes-prompt mapping failed", "error", err)
	}

	return nil
}

// resolveNoteDay returns the day key a notes reply belongs to: the
// persisted prompt mapping when available, today otherwise.
func (d *Daemon) resolveNoteDay(promptRef string) string {
	if promptRef != "" {
		if dayKey, err := d.state.Get(notesPromptKeyPrefix + promptRef); err == nil && dayKey != "" {
			return dayKey
		}
	}
	return journal.DayKey(time.Now())
}

// ---------- Assistant pipeline ----------

// handleAssistant routes a free-text message through intent classification,
// the selected tool, and the persona responder.
func (d *Daemon) handleAssistant(ctx context.Context, text string) error {
	if d.responder == nil {
		slog.Debug("assistant disabled, ignoring message")
		return nil
	}

	started := time.Now()
	intent := d.orchestrator.Classify(ctx, text)

	toolResult := d.runTool(ctx, intent, text)

	reply, err := d.responder.Respond(ctx, text, toolResult)
	if err != nil {
		slog.Error("responder failed", "error", err, "intent", intent)
		d.sendText(ctx, "My speech center is offline. How peaceful for you.")
		return nil
	}

	slog.Info("assistant reply",
		"intent", intent,
		"elapsed", time.Since(started).Round(time.Millisecond),
		"len", len(reply),
	)
	d.sendText(ctx, reply)
	d.speak(ctx, reply)
	return nil
}

// runTool executes the tool lane for an intent and returns its plain-text
// result, or "" when no tool applies. Tool failures are reported in the
// result text so the responder can relay them.
func (d *Daemon) runTool(ctx context.Context, intent agent.Intent, text string) string {
	switch intent {
	case agent.IntentHome:
		if d.hass == nil {
			return ""
		}
		speech, err := d.hass.Converse(ctx, text)
		if err != nil {
			slog.Error("home assistant tool failed", "error", err)
			return "The smart home did not respond: " + err.Error()
		}
		return speech

	case agent.IntentSearch:
		if d.search == nil {
			return ""
		}
		results, err := d.search.Search(ctx, text)
		if err != nil {
			slog.Error("search tool failed", "error", err)
			return "Web search failed: " + err.Error()
		}
		return tools.RenderResults(results)

	case agent.IntentTasks:
		if d.vikunja == nil {
			return ""
		}
		return d.runTaskTool(ctx, text)
	}
	return ""
}

// runTaskTool creates or lists tasks depending on phrasing.
func (d *Daemon) runTaskTool(ctx context.Context, text string) string {
	lower := strings.ToLower(text)
	creating := strings.Contains(lower, "add") ||
		strings.Contains(lower, "remind me") ||
		strings.Contains(lower, "put") ||
		strings.Contains(lower, "create")

	if creating {
		task, err := d.vikunja.CreateTask(ctx, text)
		if err != nil {
			slog.Error("creating task failed", "error", err)
			return "Creating the task failed: " + err.Error()
		}
		return fmt.Sprintf("Task created: %q (id %d)", task.Title, task.ID)
	}

	tasks, err := d.vikunja.PendingTasks(ctx)
	if err != nil {
		slog.Error("listing tasks failed", "error", err)
		return "Listing tasks failed: " + err.Error()
	}
	return tools.Summarize(tasks)
}

// transcribeVoice downloads and transcribes a voice message.
func (d *Daemon) transcribeVoice(ctx context.Context, msg channel.Message) (string, error) {
	if d.transcriber == nil {
		return "", errors.New("transcription not configured")
	}
	audio, err := d.channel.DownloadVoice(ctx, msg.VoiceFileID)
	if err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	return d.transcriber.Transcribe(ctx, audio)
}

// speak synthesizes the reply as a voice note. Best effort: the text
// reply already went out.
func (d *Daemon) speak(ctx context.Context, text string) {
	if d.hass == nil {
		return
	}
	audio, err := d.hass.Speak(ctx, text)
	if err != nil {
		slog.Warn("tts failed", "error", err)
		return
	}
	if err := d.channel.SendVoice(ctx, d.chatID, audio); err != nil {
		slog.Warn("sending voice note failed", "error", err)
	}
}

func (d *Daemon) sendText(ctx context.Context, text string) {
	if _, err := d.channel.Send(ctx, d.chatID, channel.Prompt{Text: text}); err != nil {
		slog.Error("sending message failed", "error", err)
	}
}
