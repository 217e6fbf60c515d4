package notification

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/events"
)

func analysisEvent(t *testing.T, id, from, to, reason string) events.Event {
	t.Helper()
	ev, err := events.NewTransitionEvent(events.EntityAnalysis, id, from, to, reason,
		map[string]any{"patient_ref": "patient-1"})
	require.NoError(t, err)
	return ev
}

func TestProcessEventStoresNotification(t *testing.T) {
	svc := NewService(conf.NotificationSettings{MaxStored: 10})

	require.NoError(t, svc.ProcessEvent(analysisEvent(t, "a-1", "pending", "processing", "")))
	require.NoError(t, svc.ProcessEvent(analysisEvent(t, "a-1", "processing", "failed", "ClassificationTimeout")))

	recent := svc.Recent(0)
	require.Len(t, recent, 2)

	// Newest first.
	n := recent[0]
	assert.Equal(t, events.EntityAnalysis, n.EntityKind)
	assert.Equal(t, "a-1", n.EntityID)
	assert.Equal(t, "processing", n.From)
	assert.Equal(t, "failed", n.To)
	assert.Equal(t, "ClassificationTimeout", n.Reason)
	assert.Equal(t, "analysis a-1: processing -> failed (ClassificationTimeout)", n.Message)
	assert.Equal(t, "patient-1", n.Metadata["patient_ref"])
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())

	assert.Equal(t, "analysis a-1: pending -> processing", recent[1].Message)
	assert.NotEqual(t, recent[0].ID, recent[1].ID)
}

func TestRecentBufferIsBounded(t *testing.T) {
	svc := NewService(conf.NotificationSettings{MaxStored: 5})

	for i := range 12 {
		id := fmt.Sprintf("a-%d", i)
		require.NoError(t, svc.ProcessEvent(analysisEvent(t, id, "pending", "completed", "")))
	}

	recent := svc.Recent(0)
	require.Len(t, recent, 5)
	// Oldest entries were evicted; the newest submission is first.
	assert.Equal(t, "a-11", recent[0].EntityID)
	assert.Equal(t, "a-7", recent[4].EntityID)
}

func TestRecentLimit(t *testing.T) {
	svc := NewService(conf.NotificationSettings{MaxStored: 10})
	for i := range 6 {
		require.NoError(t, svc.ProcessEvent(analysisEvent(t, fmt.Sprintf("a-%d", i), "", "pending", "")))
	}

	assert.Len(t, svc.Recent(3), 3)
	assert.Equal(t, "a-5", svc.Recent(3)[0].EntityID)
	assert.Len(t, svc.Recent(100), 6)
	assert.Empty(t, NewService(conf.NotificationSettings{}).Recent(5))
}

func TestDefaultMaxStored(t *testing.T) {
	svc := NewService(conf.NotificationSettings{})
	for i := range 300 {
		require.NoError(t, svc.ProcessEvent(analysisEvent(t, fmt.Sprintf("a-%d", i), "", "pending", "")))
	}
	assert.Len(t, svc.Recent(0), 250)
}

func TestFormatMessage(t *testing.T) {
	withReason := &Notification{EntityKind: "validation_task", EntityID: "t-1", From: "assigned", To: "expired", Reason: "claim SLA elapsed"}
	assert.Equal(t, "validation_task t-1: assigned -> expired (claim SLA elapsed)", formatMessage(withReason))

	plain := &Notification{EntityKind: "analysis", EntityID: "a-9", From: "pending", To: "processing"}
	assert.Equal(t, "analysis a-9: pending -> processing", formatMessage(plain))
}
