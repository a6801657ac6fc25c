// Package notify pushes per-user events (received letters, deletions and
// feedback animations) to connected websocket clients.
package notify

import (
	"context"
	"encoding/json"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

const (
	TypeLetterReceived = "letter_received"
	TypeLetterDeleted  = "letter_deleted"
	TypeFeedback       = "feedback"
)

// Event is the message written to a user's websocket.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type letterData struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	From      string `json:"from,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Channel is the pub/sub channel carrying events for uid.
func Channel(uid string) string {
	return "user:" + uid
}

// Notifier publishes events. A Notifier without a PubSub drops everything.
type Notifier struct {
	pubsub adapter.PubSub
	log    *logger.Logger
}

func NewNotifier(pubsub adapter.PubSub, log *logger.Logger) *Notifier {
	return &Notifier{pubsub: pubsub, log: log}
}

func (n *Notifier) Publish(ctx context.Context, uid string, event Event) error {
	if n == nil || n.pubsub == nil || uid == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.pubsub.Publish(ctx, Channel(uid), body)
}

// LetterReceived tells the recipient of l about it. Failures are logged only.
func (n *Notifier) LetterReceived(ctx context.Context, l *model.Letter) {
	if l == nil || l.To == "" {
		return
	}
	event := Event{Type: TypeLetterReceived, Data: letterData{ID: l.ID, Title: l.Title, From: l.From, Timestamp: l.Timestamp}}
	if err := n.Publish(ctx, l.To, event); err != nil {
		n.log.With("letter", l.ID).Error(err, "failed to publish letter_received")
	}
}

// LetterDeleted tells uid that a letter disappeared from their boxes.
func (n *Notifier) LetterDeleted(ctx context.Context, uid, letterID string) {
	if err := n.Publish(ctx, uid, Event{Type: TypeLetterDeleted, Data: letterData{ID: letterID}}); err != nil {
		n.log.With("letter", letterID).Error(err, "failed to publish letter_deleted")
	}
}

// Stage returns an editor.Stage that plays animations on uid's clients.
func (n *Notifier) Stage(uid string) editor.Stage {
	return userStage{n: n, uid: uid}
}

type userStage struct {
	n   *Notifier
	uid string
}

func (s userStage) Show(ctx context.Context, a *editor.Animation) error {
	return s.n.Publish(ctx, s.uid, Event{Type: TypeFeedback, Data: a})
}
