package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"moutamayiz/pkg/moutamayiz"
)

// fallbackTopicName labels message notifications whose topic is not in the
// configured list.
const fallbackTopicName = "المجتمع"

// Option mutates deliverer configuration.
type Option func(*Deliverer)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deliverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Deliverer chooses the delivery channel for inbound activity: a
// system-level notification when the application surface is hidden, an
// in-app toast when it is visible. Exactly one path runs per event, and
// delivery failure never propagates.
type Deliverer struct {
	presenter moutamayiz.Presenter
	hidden    moutamayiz.VisibilityFunc
	logger    *slog.Logger
}

// New creates a deliverer. hidden reports whether the application surface is
// currently hidden.
func New(presenter moutamayiz.Presenter, hidden moutamayiz.VisibilityFunc, options ...Option) (*Deliverer, error) {
	if presenter == nil {
		return nil, fmt.Errorf("new deliverer: nil presenter")
	}
	if hidden == nil {
		return nil, fmt.Errorf("new deliverer: nil visibility probe")
	}

	deliverer := &Deliverer{
		presenter: presenter,
		hidden:    hidden,
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(deliverer)
	}

	return deliverer, nil
}

// Notification delivers one inbox notification: a chime plus either a system
// notification (surface hidden, body extracted from structured content) or a
// toast (surface visible), never both.
func (d *Deliverer) Notification(ctx context.Context, notification moutamayiz.NotificationRecord) {
	d.presenter.Chime(ctx)

	if d.hidden() {
		body := ExtractBody(notification.Content)
		if err := d.presenter.SystemNotify(ctx, notification.Title, body); err != nil {
			d.logger.Warn("system notification failed", "notification_id", notification.ID, "error", err)
		}
		return
	}

	if err := d.presenter.Toast(ctx, notification.Title); err != nil {
		d.logger.Warn("toast delivery failed", "notification_id", notification.ID, "error", err)
	}
}

// Message delivers a system notification naming topic and sender for one
// foreign community message, only when the surface is hidden. A visible
// surface relies on the unread badge instead.
func (d *Deliverer) Message(ctx context.Context, message moutamayiz.MessageRecord, topicName string) {
	if !d.hidden() {
		return
	}

	if topicName == "" {
		topicName = fallbackTopicName
	}
	title := fmt.Sprintf("رسالة جديدة في %s", topicName)
	body := fmt.Sprintf("%s: %s", message.AuthorName, message.Content)
	if err := d.presenter.SystemNotify(ctx, title, body); err != nil {
		d.logger.Warn("system notification failed", "message_id", message.ID, "error", err)
	}
}

// ExtractBody pulls a human-readable body out of structured notification
// content. Unparseable content falls back to the raw string; extraction
// never fails a delivery.
func ExtractBody(content string) string {
	var structured struct {
		Content string `json:"content"`
		Answer  string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		return content
	}
	if structured.Content != "" {
		return structured.Content
	}
	if structured.Answer != "" {
		return structured.Answer
	}

	return content
}
