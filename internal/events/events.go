// Package events publishes VM lifecycle notifications.
//
// Publishing is fire-and-forget: a failed publish is logged by the caller and
// never fails the VM operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SubjectPrefix is prepended to the event type to form the NATS subject,
// e.g. "rcloud.vm.created".
const SubjectPrefix = "rcloud.vm."

// Event types.
const (
	TypeCreated        = "created"
	TypeCreateFailed   = "create_failed"
	TypeStarted        = "started"
	TypeStopped        = "stopped"
	TypeDestroyed      = "destroyed"
	TypeRollbackFailed = "rollback_failed"
)

// Event is the JSON payload published for each lifecycle change.
type Event struct {
	Type  string    `json:"event"`
	ID    string    `json:"id,omitempty"`
	Name  string    `json:"name,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// Subject returns the subject the event is published on.
func (e Event) Subject() string {
	return SubjectPrefix + e.Type
}

// Publisher sends raw payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Emit encodes e and publishes it on its subject. A zero Time is set to now.
func Emit(ctx context.Context, p Publisher, e Event) error {
	if p == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	if err := p.Publish(ctx, e.Subject(), payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, []byte) error { return nil }
