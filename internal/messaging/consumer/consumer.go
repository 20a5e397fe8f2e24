package consumer

import (
	"context"

	"pvchain/internal/models"
)

// Consumer defines the interface for anchor task consumers.
type Consumer interface {
	// Consume blocks until a task is received or the context is cancelled.
	// It returns the task, an acknowledgement callback, and any error that
	// occurred. The ack callback: ack(true) for successful processing (task
	// will be deleted); ack(false) for temporary failure (task will be
	// redelivered).
	Consume(ctx context.Context) (task *models.AnchorTask, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
