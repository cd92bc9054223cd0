package orchestration

import (
	"fmt"
	"sync"

	"github.com/koscakluka/ema-battle/core/events"
)

// Handler receives every state change. Handlers run synchronously on the
// goroutine that changed the state, so they must not call Start, Reset or
// Close themselves.
type Handler func(events.Event) error

type subscriber struct {
	id      int
	handler Handler
}

type publisher struct {
	mu          sync.RWMutex
	nextID      int
	subscribers []subscriber
}

func (p *publisher) subscribe(handler Handler) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subscribers = append(p.subscribers, subscriber{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { p.remove(id) })
	}
}

func (p *publisher) remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sub := range p.subscribers {
		if sub.id == id {
			p.subscribers = append(p.subscribers[:i:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisher) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

// publish delivers event to every subscriber in subscription order. A failing
// subscriber is logged and never stops delivery to the others.
func (p *publisher) publish(event events.Event) {
	p.mu.RLock()
	subscribers := p.subscribers
	p.mu.RUnlock()

	for _, sub := range subscribers {
		if err := deliver(sub.handler, event); err != nil {
			logger.Warn("state change delivery failed",
				"event", string(event.Kind()),
				"subscriber", sub.id,
				"error", err,
			)
		}
	}
}

func deliver(handler Handler, event events.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("subscriber panicked: %v", recovered)
		}
	}()
	return handler(event)
}
