package rpc

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ethpool/core/events"
	"ethpool/integrations/eventlog"
	"ethpool/native/pool"
)

func TestGetEventsFromLog(t *testing.T) {
	f := newFixture(t, Config{})

	status, resp := f.call("", "pool_getEvents")
	require.Equal(t, http.StatusNotFound, status)
	requireCode(t, resp, codeMethodNotFound)

	log, err := eventlog.Open(eventlog.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	defer log.Close()
	f.server.SetEventSource(log)
	f.engine.SetEmitter(events.MultiEmitter{f.server.Events(), log})

	f.ok(f.token(aliceAddr), "pool_stake", nil, "10")
	f.ok(f.token(bobAddr), "pool_stake", nil, "20")

	var all []EventResult
	f.ok("", "pool_getEvents", &all)
	require.Len(t, all, 2)
	require.Equal(t, uint64(1), all[0].Sequence)
	require.Equal(t, pool.EventTypeStaked, all[0].Type)

	var mine []EventResult
	f.ok("", "pool_getEvents", &mine, EventFilter{Account: bobAddr.Hex()})
	require.Len(t, mine, 1)
	require.Equal(t, "20", mine[0].Attributes["amount"])

	_, resp = f.call("", "pool_getEvents", map[string]interface{}{"bogus": 1})
	requireCode(t, resp, codeInvalidParams)
}
