package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"ethpool/core/events"
	"ethpool/core/types"
	"ethpool/native/pool"
)

type stubEvent struct{ typ string }

func (e stubEvent) EventType() string { return e.typ }

func (e stubEvent) Event() *types.Event {
	return &types.Event{Type: e.typ, Attributes: map[string]string{"n": "1"}}
}

var _ events.Emitter = (*EventHub)(nil)

func TestEventHubFiltersAndEvicts(t *testing.T) {
	hub := NewEventHub(1)
	all, allEvicted, cancelAll := hub.Subscribe(nil)
	defer cancelAll()
	staked, _, cancelStaked := hub.Subscribe([]string{pool.EventTypeStaked})
	defer cancelStaked()

	hub.Emit(stubEvent{typ: pool.EventTypeEpochFinalized})
	select {
	case data := <-all:
		require.Contains(t, string(data), pool.EventTypeEpochFinalized)
	default:
		t.Fatalf("unfiltered subscriber missed event")
	}
	select {
	case <-staked:
		t.Fatalf("filtered subscriber received unrelated event")
	default:
	}

	// The unfiltered queue holds one frame; the second overflows it.
	hub.Emit(stubEvent{typ: pool.EventTypeStaked})
	<-staked
	hub.Emit(stubEvent{typ: pool.EventTypeStaked})
	select {
	case <-allEvicted:
	default:
		t.Fatalf("slow subscriber should be evicted")
	}
	require.Equal(t, 1, hub.Subscribers())

	hub.Close()
	require.Equal(t, 0, hub.Subscribers())
	_, evicted, cancel := hub.Subscribe(nil)
	defer cancel()
	select {
	case <-evicted:
	default:
		t.Fatalf("subscriptions after close must be evicted immediately")
	}
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/events?types=" + pool.EventTypeStaked
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: f.ts.Client()})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return f.server.Events().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.ok(f.token(adminAddr), "pool_grantRole", nil, pool.RoleDepositor, bobAddr.Hex())
	f.ok(f.token(aliceAddr), "pool_stake", nil, "75")

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, pool.EventTypeStaked, evt.Type)
	require.Equal(t, "75", evt.Attr("amount"))
}
