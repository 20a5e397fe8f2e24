// Package events carries audit signals out of the approval pipeline.
// Emission is fire-and-forget: the pipeline never blocks on it and never
// fails because an emitter failed.
package events

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// Kind names an audit event.
type Kind string

const (
	ApprovalStarted   Kind = "approval_started"
	ApprovalSucceeded Kind = "approval_succeeded"
	ApprovalFailed    Kind = "approval_failed"
	ReportRejected    Kind = "report_rejected"
	AnchorSucceeded   Kind = "anchor_succeeded"
	AnchorFailed      Kind = "anchor_failed"
)

// Event is a single audit record.
type Event struct {
	ID      string
	Kind    Kind
	BatchID string
	Actor   string
	Detail  string
	At      time.Time
}

// Emitter receives audit events. Implementations must not block.
type Emitter interface {
	Emit(e Event)
}

// LogEmitter writes events to a standard logger.
type LogEmitter struct {
	logger *log.Logger
}

// NewLogEmitter creates a LogEmitter.
func NewLogEmitter(logger *log.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(e Event) {
	l.logger.Printf("event=%s batch=%s actor=%s detail=%q", e.Kind, e.BatchID, e.Actor, e.Detail)
}

// New builds an Event with a fresh id and timestamp.
func New(kind Kind, batchID, actor, detail string) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		BatchID: batchID,
		Actor:   actor,
		Detail:  detail,
		At:      time.Now(),
	}
}

// Discard is an Emitter that drops everything. Useful in tests.
type Discard struct{}

func (Discard) Emit(Event) {}
