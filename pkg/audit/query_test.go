package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovbd/provkb/pkg/model"
)

func sampleLog(t *testing.T) []model.AuditEvent {
	t.Helper()
	ev1, err := SourceChange("2025-01-01T00:00:00Z", "source.a", "h0", "h1", "system")
	require.NoError(t, err)
	ev2, err := ClaimInvalidation("2025-01-01T00:00:01Z", []string{"claim.fee.x.a"}, []string{"source.a"}, "system")
	require.NoError(t, err)
	ev3, err := Verification("2025-02-01T00:00:00Z", []string{"claim.fee.x.a"}, "script:verify_fees")
	require.NoError(t, err)
	return []model.AuditEvent{ev1, ev2, ev3}
}

func TestQueryByType(t *testing.T) {
	log := sampleLog(t)
	got := Query(log, Filter{EventType: model.EventSourceChange})
	require.Len(t, got, 1)
	assert.Equal(t, model.EventSourceChange, got[0].EventType)
}

func TestQueryByEntity(t *testing.T) {
	log := sampleLog(t)
	got := ForEntity(log, "claim.fee.x.a")
	assert.Len(t, got, 2)
	got = ForEntity(log, "source.a")
	assert.Len(t, got, 2)
	got = ForEntity(log, "source.zzz")
	assert.Empty(t, got)
}

func TestQueryByActorAndTime(t *testing.T) {
	log := sampleLog(t)
	got := Query(log, Filter{Actor: "script:verify_fees"})
	require.Len(t, got, 1)

	since, _ := time.Parse(time.RFC3339, "2025-01-15T00:00:00Z")
	got = Query(log, Filter{Since: since})
	require.Len(t, got, 1)
	assert.Equal(t, model.EventVerification, got[0].EventType)

	until, _ := time.Parse(time.RFC3339, "2025-01-15T00:00:00Z")
	got = Query(log, Filter{Until: until})
	assert.Len(t, got, 2)
}
