package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jun/dijitalmektup/internal/mq"
)

// Queue implements mq.MessageQueue with a buffered channel. Received messages
// that are not deleted within the visibility timeout are redelivered.
type Queue struct {
	ch       chan mq.Message
	wait     time.Duration
	seq      int
	inflight map[string]*time.Timer
	mu       sync.Mutex
}

// NewQueue creates a queue whose Receive waits at most wait for a message.
func NewQueue(capacity int, wait time.Duration) *Queue {
	return &Queue{
		ch:       make(chan mq.Message, capacity),
		wait:     wait,
		inflight: make(map[string]*time.Timer),
	}
}

func (q *Queue) Send(ctx context.Context, body string) error {
	q.mu.Lock()
	q.seq++
	id := strconv.Itoa(q.seq)
	q.mu.Unlock()

	select {
	case q.ch <- mq.Message{Id: id, Body: body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	timer := time.NewTimer(q.wait)
	defer timer.Stop()

	select {
	case msg := <-q.ch:
		q.mu.Lock()
		q.inflight[msg.Id] = time.AfterFunc(time.Duration(visibilityTimeout)*time.Second, func() {
			q.mu.Lock()
			_, pending := q.inflight[msg.Id]
			delete(q.inflight, msg.Id)
			q.mu.Unlock()
			if pending {
				select {
				case q.ch <- msg:
				default:
				}
			}
		})
		q.mu.Unlock()
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Delete(ctx context.Context, msg *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.inflight[msg.Id]; ok {
		t.Stop()
		delete(q.inflight, msg.Id)
	}
	return nil
}

// Len reports messages waiting for delivery.
func (q *Queue) Len() int {
	return len(q.ch)
}
