package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"outage-ingester/internal/model"
)

// Sink is the minimal interface all sinks must implement.
type Sink interface {
	Name() string
	Push(ctx context.Context, batch []model.Notification) error
}

// Handler receives a published notification.
type Handler func(ctx context.Context, n model.Notification) error

// ErrUnnamed is returned for notifications without a name.
var ErrUnnamed = errors.New("sink: notification has no name")

// Bus is the in-process event bus the coordinator fires data-changed
// notifications on. Handlers run in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zap.Logger
	// OnPush observes the outcome of every attached sink push.
	OnPush func(sink string, err error)
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{handlers: make(map[string][]Handler), log: log.Named("bus")}
}

// Subscribe registers h for notifications called name.
func (b *Bus) Subscribe(name string, h Handler) {
	if name == "" || h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], h)
	b.mu.Unlock()
}

// Attach forwards data-changed notifications to s.
func (b *Bus) Attach(s Sink) {
	b.Subscribe(model.EventDataChanged, func(ctx context.Context, n model.Notification) error {
		err := s.Push(ctx, []model.Notification{n})
		if b.OnPush != nil {
			b.OnPush(s.Name(), err)
		}
		if err != nil {
			return fmt.Errorf("push %s -> %s: %w", n.ZoneID, s.Name(), err)
		}
		return nil
	})
}

// Publish delivers n to every handler of its name. All handlers run even
// when one fails; the errors are joined.
func (b *Bus) Publish(ctx context.Context, n model.Notification) error {
	if n.Name == "" {
		return ErrUnnamed
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[n.Name]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, n); err != nil {
			b.log.Warn("handler failed", zap.String("name", n.Name), zap.String("zone", n.ZoneID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	b.log.Debug("published", zap.String("name", n.Name), zap.String("zone", n.ZoneID), zap.Int("handlers", len(handlers)))
	return errors.Join(errs...)
}
