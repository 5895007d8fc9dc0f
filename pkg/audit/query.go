package audit

import (
	"time"

	"github.com/opengovbd/provkb/pkg/model"
)

// Filter selects audit events. Zero-valued fields match everything.
type Filter struct {
	EventType model.EventType
	EntityID  string // matches any bucket of affected_entities
	Actor     string
	Since     time.Time
	Until     time.Time
}

// Query returns the events of the log matching the filter, in log order.
func Query(log []model.AuditEvent, f Filter) []model.AuditEvent {
	var out []model.AuditEvent
	for _, ev := range log {
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.Actor != "" && ev.Actor != f.Actor {
			continue
		}
		if f.EntityID != "" && !touches(ev, f.EntityID) {
			continue
		}
		if !f.Since.IsZero() || !f.Until.IsZero() {
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err != nil {
				continue
			}
			if !f.Since.IsZero() && ts.Before(f.Since) {
				continue
			}
			if !f.Until.IsZero() && ts.After(f.Until) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// ForEntity returns every event that touched the given entity ID.
func ForEntity(log []model.AuditEvent, entityID string) []model.AuditEvent {
	return Query(log, Filter{EntityID: entityID})
}

func touches(ev model.AuditEvent, entityID string) bool {
	for _, bucket := range ev.AffectedEntities.Buckets() {
		for _, id := range bucket {
			if id == entityID {
				return true
			}
		}
	}
	return false
}
