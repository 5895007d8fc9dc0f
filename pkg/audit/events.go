// Package audit builds and queries the KB's typed, content-addressed event
// log. Event IDs are derived from the event's type, timestamp and affected
// entities, so replaying the same mutation always produces the same record.
package audit

import (
	"errors"
	"fmt"

	"github.com/opengovbd/provkb/pkg/ids"
	"github.com/opengovbd/provkb/pkg/model"
)

var (
	// ErrInvalidActor is returned when the actor does not match the
	// accepted grammar (system | user | script:<name>).
	ErrInvalidActor = errors.New("audit: invalid actor")
	// ErrUnknownEventType is returned for event types outside the enum.
	ErrUnknownEventType = errors.New("audit: unknown event type")
)

// NewEvent constructs a content-addressed audit event. The ID is derived
// from the type, timestamp and normalized affected-entity buckets.
func NewEvent(eventType model.EventType, timestamp string, affected model.AffectedEntities, actor string) (model.AuditEvent, error) {
	if !model.ValidEventType(eventType) {
		return model.AuditEvent{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if !model.ValidActor(actor) {
		return model.AuditEvent{}, fmt.Errorf("%w: %q", ErrInvalidActor, actor)
	}
	id, err := ids.EventID(string(eventType), timestamp, affected.Buckets())
	if err != nil {
		return model.AuditEvent{}, err
	}
	return model.AuditEvent{
		EventID:          id,
		EventType:        eventType,
		Timestamp:        timestamp,
		AffectedEntities: affected,
		Actor:            actor,
	}, nil
}

// SourceChange records a detected content change on one source page.
func SourceChange(timestamp, sourcePageID, hashBefore, hashAfter, actor string) (model.AuditEvent, error) {
	ev, err := NewEvent(model.EventSourceChange, timestamp, model.AffectedEntities{
		SourcePages: []string{sourcePageID},
	}, actor)
	if err != nil {
		return model.AuditEvent{}, err
	}
	ev.Description = "source content changed"
	ev.Metadata = map[string]any{
		"hash_before": hashBefore,
		"hash_after":  hashAfter,
	}
	return ev, nil
}

// ClaimInvalidation records one invalidation sweep: all claims marked stale
// because the given source pages changed.
func ClaimInvalidation(timestamp string, claimIDs, sourcePageIDs []string, actor string) (model.AuditEvent, error) {
	ev, err := NewEvent(model.EventClaimInvalidation, timestamp, model.AffectedEntities{
		Claims:      claimIDs,
		SourcePages: sourcePageIDs,
	}, actor)
	if err != nil {
		return model.AuditEvent{}, err
	}
	ev.Description = fmt.Sprintf("%d claim(s) invalidated after source change", len(claimIDs))
	return ev, nil
}

// Migration records a schema migration and the IDs it touched.
func Migration(timestamp string, affected model.AffectedEntities, actor, description string) (model.AuditEvent, error) {
	ev, err := NewEvent(model.EventMigration, timestamp, affected, actor)
	if err != nil {
		return model.AuditEvent{}, err
	}
	ev.Description = description
	return ev, nil
}

// Verification records a manual or scripted re-verification of claims.
func Verification(timestamp string, claimIDs []string, actor string) (model.AuditEvent, error) {
	ev, err := NewEvent(model.EventVerification, timestamp, model.AffectedEntities{
		Claims: claimIDs,
	}, actor)
	if err != nil {
		return model.AuditEvent{}, err
	}
	ev.Description = fmt.Sprintf("%d claim(s) verified", len(claimIDs))
	return ev, nil
}

// Append appends an event to the document's audit log, preserving call
// order. The log is append-only; nothing is ever rewritten.
func Append(kb *model.KB, ev model.AuditEvent) {
	kb.AuditLog = append(kb.AuditLog, ev)
}
