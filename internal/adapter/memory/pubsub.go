package memory

import (
	"context"
	"sync"
)

type subscriber struct {
	handler func([]byte)
}

// PubSub implements adapter.PubSub within a single process. Handlers run
// synchronously in the publisher's goroutine.
type PubSub struct {
	subs map[string]map[*subscriber]struct{}
	mu   sync.RWMutex
}

func NewPubSub() *PubSub {
	return &PubSub{subs: make(map[string]map[*subscriber]struct{})}
}

func (p *PubSub) Publish(ctx context.Context, channel string, message []byte) error {
	p.mu.RLock()
	handlers := make([]func([]byte), 0, len(p.subs[channel]))
	for s := range p.subs[channel] {
		handlers = append(handlers, s.handler)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		h(message)
	}
	return nil
}

func (p *PubSub) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	s := &subscriber{handler: handler}

	p.mu.Lock()
	if p.subs[channel] == nil {
		p.subs[channel] = make(map[*subscriber]struct{})
	}
	p.subs[channel][s] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs[channel], s)
		if len(p.subs[channel]) == 0 {
			delete(p.subs, channel)
		}
		p.mu.Unlock()
	}()
	return nil
}
