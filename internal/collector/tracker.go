package collector

import (
	"context"
	"log/slog"

	"github.com/commpulse/community-pulse/pkg/kafka"
)

// Tracker publishes snapshot events asynchronously so a slow broker never
// stalls a lookup. Events are dropped, with a warning, when the buffer fills.
type Tracker struct {
	producer *kafka.Producer
	eventCh  chan SnapshotEvent
	logger   *slog.Logger
	done     chan struct{}
}

// NewTracker creates a Tracker with the given buffer size (default 1000).
func NewTracker(producer *kafka.Producer, bufferSize int) *Tracker {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Tracker{
		producer: producer,
		eventCh:  make(chan SnapshotEvent, bufferSize),
		logger:   slog.Default().With("component", "snapshot-tracker"),
		done:     make(chan struct{}),
	}
}

// Start launches the background publish loop.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		defer close(t.done)
		for {
			select {
			case event, ok := <-t.eventCh:
				if !ok {
					return
				}
				t.publish(ctx, event)
			case <-ctx.Done():
				t.drainRemaining()
				return
			}
		}
	}()
	t.logger.Info("snapshot tracker started", "buffer_size", cap(t.eventCh))
}

// Track enqueues a snapshot event without blocking.
func (t *Tracker) Track(event SnapshotEvent) {
	select {
	case t.eventCh <- event:
	default:
		t.logger.Warn("snapshot event dropped (buffer full)",
			"community", event.CommunityName,
		)
	}
}

// Close stops accepting events and waits for the publish loop to flush.
func (t *Tracker) Close() {
	close(t.eventCh)
	<-t.done
}

func (t *Tracker) publish(ctx context.Context, event SnapshotEvent) {
	err := t.producer.Publish(ctx, kafka.Event{
		Key:   event.CommunityName,
		Value: event,
	})
	if err != nil {
		t.logger.Error("failed to publish snapshot event",
			"community", event.CommunityName,
			"error", err,
		)
	}
}

func (t *Tracker) drainRemaining() {
	for {
		select {
		case event, ok := <-t.eventCh:
			if !ok {
				return
			}
			t.publish(context.Background(), event)
		default:
			return
		}
	}
}
