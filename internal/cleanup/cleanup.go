// Package cleanup retries deletion of letter objects that could not be
// removed when their letter was deleted.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/mq"
)

// Task names one orphaned object.
type Task struct {
	Key      string `json:"key"`
	Owner    string `json:"owner"`
	LetterID string `json:"letterId"`
	Attempts int    `json:"attempts"`
}

const (
	// MaxAttempts bounds how often a task is retried before it is dropped.
	MaxAttempts = 5

	// Deleting a single object is quick; a minute covers slow object stores.
	visibilityTimeout = 60
)

// Enqueue sends the task to q.
func Enqueue(ctx context.Context, q mq.MessageQueue, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.Send(ctx, string(body))
}

// Worker consumes cleanup tasks.
type Worker struct {
	queue    mq.MessageQueue
	provider adapter.ObjectProvider
	log      *logger.Logger
}

func NewWorker(queue mq.MessageQueue, provider adapter.ObjectProvider, log *logger.Logger) *Worker {
	return &Worker{queue: queue, provider: provider, log: log}
}

// Run polls the queue until shutdownCtx is cancelled.
func (w *Worker) Run(shutdownCtx context.Context) {
	w.log.Info("cleanup worker started")
	for {
		msg, err := w.queue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.log.Info("cleanup worker stopped")
				return
			}
			w.log.Error(err, "cleanup receive error")
			continue
		}
		if msg == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
		w.Process(ctx, msg)
		cancel()
	}
}

// Process handles one message. Failed tasks are re-enqueued with one more
// attempt until MaxAttempts is reached; the received message is always
// removed once handled.
func (w *Worker) Process(ctx context.Context, msg *mq.Message) {
	var task Task
	if err := json.Unmarshal([]byte(msg.Body), &task); err != nil {
		w.log.Error(err, "dropping malformed cleanup message")
		w.ack(ctx, msg)
		return
	}
	log := w.log.WithFields(map[string]any{"key": task.Key, "letter": task.LetterID, "attempt": task.Attempts + 1})

	err := w.deleteObject(ctx, task)
	switch {
	case err == nil:
		log.Debug("orphaned object deleted")
	case task.Attempts+1 >= MaxAttempts:
		log.Error(err, "giving up on orphaned object")
	default:
		task.Attempts++
		if sendErr := Enqueue(ctx, w.queue, task); sendErr != nil {
			// keep the message so the queue redelivers it
			log.Error(sendErr, "failed to requeue cleanup task")
			return
		}
		log.Warn("orphaned object delete failed, requeued")
	}
	w.ack(ctx, msg)
}

func (w *Worker) deleteObject(ctx context.Context, task Task) error {
	store, err := w.provider.GetObjectStore(ctx, task.Owner)
	if err != nil {
		return fmt.Errorf("resolving object store: %w", err)
	}
	if err := store.DeleteObject(ctx, task.Key); err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return err
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, msg *mq.Message) {
	if err := w.queue.Delete(ctx, msg); err != nil {
		w.log.Error(err, "cleanup delete message error")
	}
}
