package app

import (
	"context"
	"encoding/json"
	"testing"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Connection) []domain.Event {
	var events []domain.Event
	for {
		select {
		case frame, ok := <-c.Outbound():
			if !ok {
				return events
			}
			var ev domain.Event
			if err := json.Unmarshal(frame, &ev); err == nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func TestHubBroadcastOnlySubscribed(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Register("a")
	b := hub.Register("b")
	c := hub.Register("c")
	require.NoError(t, hub.Subscribe("a", 1))
	require.NoError(t, hub.Subscribe("b", 2))

	require.NoError(t, hub.Broadcast(domain.NewEvent(domain.EventMemberOnline, domain.PresencePayload{MemberID: 1}), "a"))

	assert.Empty(t, drain(a))
	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventMemberOnline, got[0].Type)
	assert.Empty(t, drain(c))
	assert.Equal(t, int64(2), b.Identity())
}

func TestHubSubscribeUnknown(t *testing.T) {
	hub := NewHub(4, nil)
	assert.ErrorIs(t, hub.Subscribe("ghost", 1), errprocess.ErrNotFound)
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(1, metrics)
	slow := hub.Register("slow")
	fast := hub.Register("fast")
	require.NoError(t, hub.Subscribe("slow", 1))
	require.NoError(t, hub.Subscribe("fast", 2))

	ev := domain.NewEvent(domain.EventNewMessage, map[string]int{"id": 1})
	require.NoError(t, hub.Broadcast(ev, ""))
	assert.Len(t, drain(fast), 1)

	// slow never drained: second frame is dropped for it only
	err := hub.Broadcast(ev, "")
	assert.ErrorIs(t, err, errprocess.ErrTransport)
	assert.Len(t, drain(fast), 1)
	assert.Len(t, drain(slow), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DroppedFrames))
}

func TestHubUnregisterClosesOutbound(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	hub := NewHub(4, metrics)
	c := hub.Register("a")
	require.NoError(t, hub.Subscribe("a", 1))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Connections))

	hub.Unregister("a")
	hub.Unregister("a")
	_, ok := <-c.Outbound()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Connections))

	assert.ErrorIs(t, hub.Send("a", domain.NewEvent(domain.EventError, nil)), errprocess.ErrTransport)
	assert.NoError(t, hub.Notify(context.Background(), domain.NewEvent(domain.EventNewMessage, nil)))
}

func TestHubSendDirect(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register("a")

	require.NoError(t, hub.Send("a", domain.NewEvent(domain.EventOnlineMembers, domain.OnlineMembersPayload{Members: []int64{2}})))
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventOnlineMembers, got[0].Type)
}
