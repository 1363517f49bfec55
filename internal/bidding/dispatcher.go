package bidding

import (
	"context"
	"log/slog"
	"sync"

	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
)

// Publisher ships notifications to other replicas.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Dispatcher is the engine's EventSink. It buffers notifications emitted
// during one operation; the Service persists them and then calls Deliver.
type Dispatcher struct {
	mu      sync.Mutex
	pending []model.Event

	hub    *WSHub
	bus    Publisher
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. hub and bus may be nil. With a bus,
// the hub is expected to be fed through Relay so every replica's clients
// see every notification exactly once.
func NewDispatcher(hub *WSHub, bus Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, bus: bus, logger: logger.With("component", "dispatcher")}
}

// Publish implements auction.EventSink.
func (d *Dispatcher) Publish(_ context.Context, ev model.Event) {
	d.mu.Lock()
	d.pending = append(d.pending, ev)
	d.mu.Unlock()
}

func (d *Dispatcher) take() []model.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pending
	d.pending = nil
	return out
}

// Deliver records metrics and fans events out to the bus or the local hub.
func (d *Dispatcher) Deliver(ctx context.Context, events []model.Event) {
	for _, ev := range events {
		metrics.RecordEvent(ev)

		if d.bus != nil {
			if err := d.bus.Publish(ctx, ev); err != nil {
				metrics.SinkErrors.WithLabelValues("bus").Inc()
				d.logger.ErrorContext(ctx, "event bus publish failed", "seq", ev.Seq, "kind", ev.Kind, "err", err)
				// Local clients still hear about it.
				if d.hub != nil {
					d.hub.Broadcast(ev)
				}
			}
			continue
		}
		if d.hub != nil {
			d.hub.Broadcast(ev)
		}
	}
}

// Relay forwards bus notifications to the local hub until ch closes or ctx
// is done.
func (d *Dispatcher) Relay(ctx context.Context, ch <-chan model.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if d.hub != nil {
				d.hub.Broadcast(ev)
			}
		}
	}
}
