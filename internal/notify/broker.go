package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cuemby/sysrepo-engine/internal/telemetry"
)

// Dispatcher delivers a built Notification to its subscriber's connection.
// Implemented by internal/transport's Connection Manager.
type Dispatcher interface {
	Deliver(ctx context.Context, n Notification) error
}

// Broker drains a bounded channel of raw change events, looks up matching
// subscribers in the Index, and hands a Notification per subscriber to the
// Dispatcher. Shape is grounded on the teacher's single run()-goroutine
// broadcast loop; what's new is building one record per subscriber instead
// of broadcasting a shared pointer, and retrying delivery with backoff
// before giving up on a subscriber.
type Broker struct {
	idx    *Index
	disp   Dispatcher
	raw    chan rawEvent
	stopCh chan struct{}
}

type rawEvent struct {
	kind    EventKind
	module  string
	payload map[string]any
}

// NewBroker creates a broker bound to a subscription index and a dispatcher.
func NewBroker(idx *Index, disp Dispatcher) *Broker {
	return &Broker{
		idx:    idx,
		disp:   disp,
		raw:    make(chan rawEvent, 256),
		stopCh: make(chan struct{}),
	}
}

// Start begins the broker's dispatch loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Publish enqueues a change for fanout. It never blocks the caller beyond
// the channel's buffer; when the buffer is full the event being published
// is logged and dropped, so notification delivery never stalls the caller
// (the commit path).
func (b *Broker) Publish(kind EventKind, module string, payload map[string]any) {
	select {
	case b.raw <- rawEvent{kind: kind, module: module, payload: payload}:
	case <-b.stopCh:
	default:
		log := telemetry.WithComponent("notify")
		log.Warn().Str("module", module).Str("event", string(kind)).Msg("fanout queue full, dropping event")
	}
}

func (b *Broker) run() {
	for {
		select {
		case ev := <-b.raw:
			b.fanout(ev)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) fanout(ev rawEvent) {
	subs := b.idx.Match(ev.kind, ev.module)
	now := time.Now()
	for _, s := range subs {
		n := Notification{
			Subscription: s,
			Module:       ev.module,
			Timestamp:    now,
			Payload:      ev.payload,
		}
		go b.deliverWithRetry(n)
	}
}

// deliverWithRetry retries a bounded number of times with exponential
// backoff before dropping the notification, so a momentarily slow
// subscriber doesn't lose an update outright.
func (b *Broker) deliverWithRetry(n Notification) {
	log := telemetry.WithComponent("notify")
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)

	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return b.disp.Deliver(ctx, n)
	}, bo)

	if err != nil {
		log.Warn().
			Str("module", n.Module).
			Str("event", string(n.Subscription.Event)).
			Str("destination", n.Subscription.DestinationID).
			Err(err).
			Msg("dropping notification after retries exhausted")
	}
}
