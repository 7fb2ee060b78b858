// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler consumes events of one type. Handlers run on the bus dispatcher
// goroutine, so a slow handler delays every later event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription detaches a handler from the bus. Unsubscribe may be called
// more than once.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
	once     sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.eventBus.unsubscribe(s.id, s.typ)
	})
}
