package mq

import "context"

// MessageQueue is a work queue with at-least-once delivery.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	// Receive long-polls for one message; it returns nil, nil when none arrived.
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}
