// Package notify implements an optional outbound alert sink: it
// subscribes to the broker's alerts.task_failed routing key and posts
// a Telegram message for each one, adapted directly from the
// teacher's services/notifier/main.go (Telegram Bot API sendMessage
// over the same httpx-style client-with-timeout pattern), re-themed
// from Figma screenshot-diff alerts to failed device-farm tasks. A
// notifier with no bot token configured runs as a no-op sink so the
// worker process never depends on it being configured.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/taskproto"
)

const telegramAPI = "https://api.telegram.org/bot"

// Sink posts failed-task alerts to a Telegram chat.
type Sink struct {
	botToken string
	chatID   string
	http     *http.Client
	log      zerolog.Logger
}

// New builds a Sink. An empty botToken makes Run a no-op consumer that
// acks and discards every delivery without making network calls.
func New(botToken, chatID string, log zerolog.Logger) *Sink {
	return &Sink{
		botToken: botToken,
		chatID:   chatID,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Run subscribes queueName to alerts.task_failed and forwards each
// alert to Telegram until ctx is cancelled.
func (s *Sink) Run(ctx context.Context, b broker.Broker, queueName string) error {
	deliveries, err := b.Subscribe(ctx, queueName, "alerts.#")
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			s.handle(ctx, d)
		}
	}
}

func (s *Sink) handle(ctx context.Context, d broker.Delivery) {
	defer d.Ack()

	var payload taskproto.AlertPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		s.log.Warn().Err(err).Msg("malformed alert payload")
		return
	}

	s.log.Info().
		Str("task_id", payload.TaskID).
		Str("kind", payload.Kind).
		Str("device_id", payload.DeviceID).
		Msg("task failed")

	if s.botToken == "" {
		return
	}

	msg := fmt.Sprintf(
		"⚠️ *Task failed*\nKind: `%s`\nDevice: `%s`\nHost: `%s`\nError: %s\n`task: %s`",
		payload.Kind, payload.DeviceID, payload.HostID, payload.Error, payload.TaskID,
	)
	if err := s.sendMessage(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("task_id", payload.TaskID).Msg("telegram notify failed")
	}
}

func (s *Sink) sendMessage(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chat_id":    s.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, telegramAPI+s.botToken+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram %d: %s", resp.StatusCode, b)
	}
	return nil
}
