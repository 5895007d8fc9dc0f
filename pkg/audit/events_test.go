package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovbd/provkb/pkg/model"
)

func TestNewEventContentAddressed(t *testing.T) {
	affected := model.AffectedEntities{Claims: []string{"claim.fee.epassport.b", "claim.fee.epassport.a"}}
	ev1, err := NewEvent(model.EventClaimInvalidation, "2025-01-01T00:00:00Z", affected, "system")
	require.NoError(t, err)

	// Same inputs with reordered buckets derive the same ID.
	reordered := model.AffectedEntities{Claims: []string{"claim.fee.epassport.a", "claim.fee.epassport.b"}}
	ev2, err := NewEvent(model.EventClaimInvalidation, "2025-01-01T00:00:00Z", reordered, "system")
	require.NoError(t, err)
	assert.Equal(t, ev1.EventID, ev2.EventID)

	// Different timestamp, different ID.
	ev3, err := NewEvent(model.EventClaimInvalidation, "2025-01-02T00:00:00Z", affected, "system")
	require.NoError(t, err)
	assert.NotEqual(t, ev1.EventID, ev3.EventID)
}

func TestNewEventRejectsBadActor(t *testing.T) {
	_, err := NewEvent(model.EventSourceChange, "2025-01-01T00:00:00Z", model.AffectedEntities{}, "crawler")
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestNewEventRejectsUnknownType(t *testing.T) {
	_, err := NewEvent("reindex", "2025-01-01T00:00:00Z", model.AffectedEntities{}, "system")
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestSourceChangeEvent(t *testing.T) {
	ev, err := SourceChange("2025-01-01T00:00:00Z", "source.abc", "h0", "h1", "system")
	require.NoError(t, err)
	assert.Equal(t, model.EventSourceChange, ev.EventType)
	assert.Equal(t, []string{"source.abc"}, ev.AffectedEntities.SourcePages)
	assert.Equal(t, "h0", ev.Metadata["hash_before"])
	assert.Equal(t, "h1", ev.Metadata["hash_after"])
}

func TestClaimInvalidationEvent(t *testing.T) {
	ev, err := ClaimInvalidation("2025-01-01T00:00:00Z",
		[]string{"claim.fee.epassport.a"}, []string{"source.abc"}, "system")
	require.NoError(t, err)
	assert.Equal(t, model.EventClaimInvalidation, ev.EventType)
	assert.Contains(t, ev.Description, "1 claim(s)")
}

func TestAppendPreservesOrder(t *testing.T) {
	kb := &model.KB{SchemaVersion: model.SchemaV2}
	ev1, err := SourceChange("2025-01-01T00:00:00Z", "source.a", "h0", "h1", "system")
	require.NoError(t, err)
	ev2, err := SourceChange("2025-01-02T00:00:00Z", "source.a", "h1", "h2", "system")
	require.NoError(t, err)

	Append(kb, ev1)
	Append(kb, ev2)
	require.Len(t, kb.AuditLog, 2)
	assert.Equal(t, ev1.EventID, kb.AuditLog[0].EventID)
	assert.Equal(t, ev2.EventID, kb.AuditLog[1].EventID)
}
