package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fundergrid/research-service/pkg/kafka"
)

// Collector buffers tool events and publishes them to Kafka in the
// background. Track never blocks the tool path: when the buffer is full the
// event is dropped and counted.
type Collector struct {
	producer *kafka.Producer
	eventCh  chan ToolEvent
	dropped  atomic.Int64
	logger   *slog.Logger
	done     chan struct{}
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan ToolEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event for publishing.
func (c *Collector) Track(event ToolEvent) {
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n%100 == 1 {
			c.logger.Warn("analytics events dropped (buffer full)", "total_dropped", n)
		}
	}
}

// Close stops accepting events and waits for the publish loop to finish.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		case <-ctx.Done():
			// Best-effort flush of whatever is already buffered.
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (c *Collector) publish(ctx context.Context, event ToolEvent) {
	if err := c.producer.Publish(ctx, event.Tool, event); err != nil {
		c.logger.Error("failed to publish tool event", "tool", event.Tool, "error", err)
	}
}
