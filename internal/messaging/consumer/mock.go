package consumer

import (
	"context"
	"errors"
	"log"
	"sync"

	"pvchain/internal/models"
)

// MockConsumer serves anchor tasks from an in-process channel. It backs
// tests and deployments without a broker; nacked tasks are re-queued.
type MockConsumer struct {
	logger *log.Logger
	tasks  chan *models.AnchorTask

	closeOnce sync.Once
}

// NewMockConsumer creates a MockConsumer with the given queue capacity.
func NewMockConsumer(logger *log.Logger, capacity int) *MockConsumer {
	if capacity <= 0 {
		capacity = 64
	}
	return &MockConsumer{
		logger: logger,
		tasks:  make(chan *models.AnchorTask, capacity),
	}
}

// Enqueue adds a task to the mock queue. It returns false when the queue is
// full.
func (m *MockConsumer) Enqueue(task *models.AnchorTask) bool {
	select {
	case m.tasks <- task:
		return true
	default:
		m.logger.Printf("[MockConsumer] Warning: queue full, dropping task for batch %s", task.BatchID)
		return false
	}
}

// Consume reads tasks from the channel.
func (m *MockConsumer) Consume(ctx context.Context) (task *models.AnchorTask, ack func(success bool), err error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case task := <-m.tasks:
		if task == nil {
			return nil, nil, errors.New("task channel closed")
		}

		ackCallback := func(success bool) {
			if success {
				m.logger.Printf("[MockConsumer] ACK received for batch %s", task.BatchID)
				return
			}
			m.logger.Printf("[MockConsumer] NACK received for batch %s. Re-queueing (mock)", task.BatchID)
			select {
			case m.tasks <- task:
			default:
				m.logger.Printf("[MockConsumer] Warning: Failed to re-queue task (channel full?): batch %s", task.BatchID)
			}
		}
		return task, ackCallback, nil
	}
}

// Close closes the task channel.
func (m *MockConsumer) Close() error {
	m.closeOnce.Do(func() { close(m.tasks) })
	return nil
}

var _ Consumer = (*MockConsumer)(nil)

// MockProducer publishes tasks straight into a MockConsumer's queue, giving
// broker-free deployments a working retry loop.
type MockProducer struct {
	c *MockConsumer
}

// NewMockProducer creates a MockProducer feeding the given consumer.
func NewMockProducer(c *MockConsumer) *MockProducer {
	return &MockProducer{c: c}
}

// Publish enqueues the task.
func (p *MockProducer) Publish(ctx context.Context, task *models.AnchorTask) error {
	if !p.c.Enqueue(task) {
		return errors.New("mock task queue full")
	}
	return nil
}

// Close is a no-op; the consumer owns the channel.
func (p *MockProducer) Close() error { return nil }
