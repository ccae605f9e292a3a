// Package telegram implements the channel.Channel interface over the
// Telegram Bot API directly via HTTP, no external dependencies.
//
// Features:
//   - Long polling for updates (getUpdates), callback_query included
//   - Inline keyboards with opaque callback tokens
//   - editMessageText / deleteMessage for in-place flow transitions
//   - Voice note upload (sendVoice) and download (getFile)
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/glados-labs/glados/pkg/channel"
)

// OffsetStore persists the last processed update ID across restarts so
// a crashed daemon does not replay old button presses.
type OffsetStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

const offsetKey = "telegram:update-offset"

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `json:"token"`

	// AllowedChat restricts the bot to a single chat ID. Zero means
	// respond to all chats.
	AllowedChat int64 `json:"allowed_chat"`
}

// Telegram implements channel.Channel.
type Telegram struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	// baseURL is https://api.telegram.org/bot<token>.
	baseURL string

	offsets OffsetStore
	offset  int64

	connected  atomic.Bool
	errorCount atomic.Int64

	cancel context.CancelFunc
}

// New creates a Telegram channel. offsets may be nil, in which case the
// update offset is kept in memory only.
func New(cfg Config, offsets OffsetStore, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		cfg:     cfg,
		logger:  logger.With("component", "telegram"),
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: "https://api.telegram.org/bot" + cfg.Token,
		offsets: offsets,
	}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Start verifies the token and runs the long-polling loop until ctx is
// cancelled.
func (t *Telegram) Start(ctx context.Context, onMessage channel.MessageHandler, onCallback channel.CallbackHandler) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}

	ctx, t.cancel = context.WithCancel(ctx)

	me, err := t.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	t.logger.Info("telegram: connected", "bot", me.Username, "id", me.ID)
	t.connected.Store(true)

	t.loadOffset()

	t.pollLoop(ctx, onMessage, onCallback)
	return nil
}

// Stop cancels the polling loop.
func (t *Telegram) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.connected.Store(false)
	t.logger.Info("telegram: disconnected")
	return nil
}

// Send renders a prompt as a new message and returns its message ID.
func (t *Telegram) Send(ctx context.Context, chatID string, p channel.Prompt) (string, error) {
	cid, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat ID %q: %w", chatID, err)
	}

	payload := map[string]any{
		"chat_id": cid,
		"text":    p.Text,
	}
	if markup := buildReplyMarkup(p); markup != nil {
		payload["reply_markup"] = markup
	}

	result, err := t.apiCall(ctx, "sendMessage", payload)
	if err != nil {
		return "", err
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &sent); err != nil {
		return "", fmt.Errorf("telegram: parsing sendMessage result: %w", err)
	}
	return strconv.FormatInt(sent.MessageID, 10), nil
}

// Edit replaces an existing message's text and keyboard in place.
func (t *Telegram) Edit(ctx context.Context, chatID, messageRef string, p channel.Prompt) error {
	cid, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", chatID, err)
	}
	mid, err := strconv.ParseInt(messageRef, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message ref %q: %w", messageRef, err)
	}

	payload := map[string]any{
		"chat_id":    cid,
		"message_id": mid,
		"text":       p.Text,
	}
	if markup := buildReplyMarkup(p); markup != nil {
		payload["reply_markup"] = markup
	}

	_, err = t.apiCall(ctx, "editMessageText", payload)
	return err
}

// Delete retracts a message.
func (t *Telegram) Delete(ctx context.Context, chatID, messageRef string) error {
	cid, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", chatID, err)
	}
	mid, err := strconv.ParseInt(messageRef, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message ref %q: %w", messageRef, err)
	}

	_, err = t.apiCall(ctx, "deleteMessage", map[string]any{
		"chat_id":    cid,
		"message_id": mid,
	})
	return err
}

// SendVoice uploads audio bytes as a voice note.
func (t *Telegram) SendVoice(ctx context.Context, chatID string, audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("telegram: voice data is required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", chatID)
	part, err := w.CreateFormFile("voice", "voice.mp3")
	if err != nil {
		return fmt.Errorf("telegram: creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return fmt.Errorf("telegram: writing voice data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendVoice", &buf)
	if err != nil {
		return fmt.Errorf("telegram: creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: voice upload failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram: decoding sendVoice response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram: sendVoice: %s", result.Description)
	}
	return nil
}

// DownloadVoice fetches the audio bytes for a voice message by file ID.
func (t *Telegram) DownloadVoice(ctx context.Context, fileID string) ([]byte, error) {
	file, err := t.getFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram: getFile failed: %w", err)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", t.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: creating download request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("telegram: download: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ---------- Polling ----------

func (t *Telegram) pollLoop(ctx context.Context, onMessage channel.MessageHandler, onCallback channel.CallbackHandler) {
	t.logger.Info("telegram: polling started")
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram: polling stopped")
			return
		default:
		}

		updates, err := t.getUpdates(ctx, t.offset, 100, 30)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.errorCount.Add(1)
			t.logger.Warn("telegram: getUpdates error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		t.errorCount.Store(0)

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
				t.saveOffset()
			}
			t.processUpdate(ctx, u, onMessage, onCallback)
		}
	}
}

func (t *Telegram) processUpdate(ctx context.Context, u tgUpdate, onMessage channel.MessageHandler, onCallback channel.CallbackHandler) {
	if u.CallbackQuery != nil {
		t.processCallback(ctx, u.CallbackQuery, onCallback)
		return
	}

	msg := u.Message
	if msg == nil {
		return
	}
	if !t.chatAllowed(msg.Chat.ID) {
		t.logger.Debug("telegram: dropping message from unauthorized chat", "chat", msg.Chat.ID)
		return
	}

	incoming := channel.Message{
		Source:     "telegram",
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		MessageRef: strconv.FormatInt(msg.MessageID, 10),
		Content:    msg.Text,
		Timestamp:  int64(msg.Date) * 1000,
	}
	if msg.From != nil {
		incoming.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}
	if msg.ReplyToMessage != nil {
		incoming.ReplyToRef = strconv.FormatInt(msg.ReplyToMessage.MessageID, 10)
		incoming.ReplyToText = msg.ReplyToMessage.Text
	}
	if msg.Voice != nil {
		incoming.IsVoice = true
		incoming.VoiceFileID = msg.Voice.FileID
	}

	if err := onMessage(ctx, incoming); err != nil {
		t.logger.Error("telegram: message handler failed", "error", err, "ref", incoming.MessageRef)
	}
}

func (t *Telegram) processCallback(ctx context.Context, cq *tgCallbackQuery, onCallback channel.CallbackHandler) {
	// Acknowledge first so the client stops showing the spinner even if
	// handling fails.
	if _, err := t.apiCall(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": cq.ID,
	}); err != nil {
		t.logger.Warn("telegram: answerCallbackQuery failed", "error", err)
	}

	if cq.Message == nil {
		return
	}
	if !t.chatAllowed(cq.Message.Chat.ID) {
		return
	}

	cb := channel.Callback{
		Source:     "telegram",
		SenderID:   strconv.FormatInt(cq.From.ID, 10),
		ChatID:     strconv.FormatInt(cq.Message.Chat.ID, 10),
		CallbackID: cq.ID,
		MessageRef: strconv.FormatInt(cq.Message.MessageID, 10),
		Token:      cq.Data,
	}

	if err := onCallback(ctx, cb); err != nil {
		t.logger.Error("telegram: callback handler failed", "error", err, "token", cb.Token)
	}
}

func (t *Telegram) chatAllowed(chatID int64) bool {
	return t.cfg.AllowedChat == 0 || t.cfg.AllowedChat == chatID
}

func (t *Telegram) loadOffset() {
	if t.offsets == nil {
		return
	}
	raw, err := t.offsets.Get(offsetKey)
	if err != nil || raw == "" {
		return
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t.offset = v
	}
}

func (t *Telegram) saveOffset() {
	if t.offsets == nil {
		return
	}
	if err := t.offsets.Set(offsetKey, strconv.FormatInt(t.offset, 10)); err != nil {
		t.logger.Warn("telegram: persisting offset failed", "error", err)
	}
}

// buildReplyMarkup converts prompt button rows to an InlineKeyboardMarkup.
func buildReplyMarkup(p channel.Prompt) map[string]any {
	if len(p.Buttons) == 0 {
		return nil
	}
	rows := make([][]map[string]any, 0, len(p.Buttons))
	for _, row := range p.Buttons {
		buttons := make([]map[string]any, 0, len(row))
		for _, b := range row {
			token := b.Token
			if len(token) > 64 {
				token = token[:64] // Telegram callback_data limit
			}
			buttons = append(buttons, map[string]any{
				"text":          b.Label,
				"callback_data": token,
			})
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return map[string]any{"inline_keyboard": rows}
}

// ---------- Telegram Bot API Types ----------

type tgUpdate struct {
	UpdateID      int64            `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID      int64      `json:"message_id"`
	From           *tgUser    `json:"from"`
	Chat           tgChat     `json:"chat"`
	Date           int        `json:"date"`
	Text           string     `json:"text"`
	ReplyToMessage *tgMessage `json:"reply_to_message"`
	Voice          *tgVoice   `json:"voice"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type tgVoice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
	FileSize int    `json:"file_size"`
}

type tgFile struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize int    `json:"file_size"`
}

type tgBotUser struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// ---------- API Helpers ----------

// apiCall makes a POST request to the Telegram Bot API.
func (t *Telegram) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	url := t.baseURL + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

// getMe verifies the bot token and returns bot info.
func (t *Telegram) getMe(ctx context.Context) (*tgBotUser, error) {
	data, err := t.apiCall(ctx, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	var user tgBotUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

// getUpdates fetches new updates using long polling.
func (t *Telegram) getUpdates(ctx context.Context, offset int64, limit, timeoutSecs int) ([]tgUpdate, error) {
	payload := map[string]any{
		"offset":  offset,
		"limit":   limit,
		"timeout": timeoutSecs,
		"allowed_updates": []string{
			"message", "callback_query",
		},
	}
	data, err := t.apiCall(ctx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

// getFile retrieves file info for downloading.
func (t *Telegram) getFile(ctx context.Context, fileID string) (*tgFile, error) {
	data, err := t.apiCall(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	var file tgFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("telegram: parsing getFile: %w", err)
	}
	return &file, nil
}

var _ channel.Channel = (*Telegram)(nil)
