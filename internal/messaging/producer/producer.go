package producer

import (
	"context"

	"pvchain/internal/models"
)

// Producer defines the interface for publishing anchor retry tasks
type Producer interface {
	// Publish sends a single anchor task to the retry topic
	Publish(ctx context.Context, task *models.AnchorTask) error

	// Close closes the producer connection
	Close() error
}
