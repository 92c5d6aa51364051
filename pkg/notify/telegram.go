// Package notify delivers escalation notifications to a human channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// telegramMessageLimit is the Bot API's hard cap on message length. Longer
// texts are split into chunks and sent in order.
const telegramMessageLimit = 4096

// Logger provides optional logging functionality for the notifier.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Telegram sends messages through the Telegram Bot API. It implements
// types.Notifier.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  Logger
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token, chatID string) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram chat ID cannot be empty")
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SetLogger sets an optional logger for the notifier.
func (t *Telegram) SetLogger(logger Logger) {
	t.logger = logger
}

// SetBaseURL overrides the Bot API base URL. Intended for tests.
func (t *Telegram) SetBaseURL(baseURL string) {
	t.baseURL = baseURL
}

// Ping verifies the bot token by calling getMe. Run once at startup so a
// misconfigured token surfaces immediately instead of at first escalation.
func (t *Telegram) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", t.baseURL, t.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build getMe request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram getMe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram getMe returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Send delivers text to the configured chat, chunking past the message
// limit. Chunks are sent in order; the first failure aborts the remainder.
func (t *Telegram) Send(ctx context.Context, text string) error {
	for i, chunk := range splitMessage(text, telegramMessageLimit) {
		if err := t.sendChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *Telegram) sendChunk(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram sendMessage returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// splitMessage splits text into chunks of at most limit bytes, preferring
// line boundaries so formatted reports stay readable. Cuts never land inside
// a multi-byte rune; the API rejects chunks that are not valid UTF-8.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if text[i] == '\n' {
				cut = i
				break
			}
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		if len(text) > 0 && text[0] == '\n' {
			text = text[1:]
		}
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}
