package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/codewright/codewright/internal/bus"
)

const publishTimeout = 10 * time.Second

// Relay subscribes to the in-process event bus and forwards everything it
// receives to a Publisher.
type Relay struct {
	events      <-chan bus.Event
	unsubscribe func()
	pub         *Publisher
	logger      *slog.Logger
	done        chan struct{}
}

// NewRelay subscribes to b. Call Start to begin forwarding and Stop to
// drain and detach.
func NewRelay(b *bus.Bus, pub *Publisher, logger *slog.Logger) *Relay {
	events, unsubscribe := b.Subscribe(256)
	return &Relay{
		events:      events,
		unsubscribe: unsubscribe,
		pub:         pub,
		logger:      logger.With("component", "trace"),
		done:        make(chan struct{}),
	}
}

// Start launches the forwarding loop.
func (r *Relay) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop detaches from the bus, waits for buffered events to flush, and
// closes the publisher.
func (r *Relay) Stop() {
	r.unsubscribe()
	<-r.done
	if err := r.pub.Close(); err != nil {
		r.logger.Warn("closing trace publisher", "error", err)
	}
}

func (r *Relay) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := r.pub.Publish(pubCtx, ev)
			cancel()
			if err != nil {
				r.logger.Warn("trace publish failed", "kind", ev.Kind, "error", err)
			}
		}
	}
}
