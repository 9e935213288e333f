package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ethpool/native/pool"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "ethpool-test"
	testStart  = int64(1_700_000_000)
	day        = int64(24 * 60 * 60)
)

var (
	adminAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	depositorAddr = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	aliceAddr     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bobAddr       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fixture struct {
	t      *testing.T
	engine *pool.Engine
	server *Server
	ts     *httptest.Server
	now    int64
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{t: t, now: testStart}
	auth := pool.NewStaticAuthority(map[string][]common.Address{
		pool.RoleAdministrator: {adminAddr},
		pool.RoleDepositor:     {depositorAddr},
	})
	f.engine = pool.NewEngine(pool.NewMemStore())
	f.engine.SetAuthority(auth)
	f.engine.SetRoleRegistry(auth)
	f.engine.SetNowFunc(func() int64 { return f.now })
	require.NoError(t, f.engine.Init(pool.GenesisConfig{
		RewardAmount: wei(1000),
		StakeCutoff:  testStart + 2*day,
	}))

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = testIssuer
	}
	server, err := NewServer(f.engine, cfg, nil)
	require.NoError(t, err)
	f.server = server
	f.engine.SetEmitter(server.Events())
	f.ts = httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Events().Close()
		f.ts.Close()
	})
	return f
}

func (f *fixture) token(addr common.Address) string {
	f.t.Helper()
	token, err := IssueToken(testSecret, testIssuer, addr, time.Hour)
	require.NoError(f.t, err)
	return token
}

func (f *fixture) post(token string, body []byte) (int, response) {
	f.t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/rpc", bytes.NewReader(body))
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	var out response
	require.NoError(f.t, json.Unmarshal(payload, &out), "body: %s", payload)
	return resp.StatusCode, out
}

func (f *fixture) call(token, method string, params ...interface{}) (int, response) {
	f.t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(f.t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
	require.NoError(f.t, err)
	return f.post(token, body)
}

// ok invokes method and decodes a successful result into out.
func (f *fixture) ok(token, method string, out interface{}, params ...interface{}) {
	f.t.Helper()
	status, resp := f.call(token, method, params...)
	require.Nil(f.t, resp.Error, "%s failed: %v", method, resp.Error)
	require.Equal(f.t, http.StatusOK, status)
	if out != nil {
		require.NoError(f.t, json.Unmarshal(resp.Result, out))
	}
}

func wei(n int64) *big.Int { return big.NewInt(n) }

func requireCode(t *testing.T, resp response, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected error code %d", code)
	require.Equal(t, code, resp.Error.Code, "message: %s data: %v", resp.Error.Message, resp.Error.Data)
}

func TestStakeAndQueries(t *testing.T) {
	f := newFixture(t, Config{})
	alice := f.token(aliceAddr)

	var staked StakeResult
	f.ok(alice, "pool_stake", &staked, "600")
	require.True(t, staked.Qualified)
	require.Equal(t, "600", staked.Staked)
	require.Equal(t, aliceAddr.Hex(), staked.Account)
	f.ok(f.token(bobAddr), "pool_stake", nil, 400)

	var account AccountResult
	f.ok("", "pool_getAccount", &account, aliceAddr.Hex())
	require.Equal(t, "600", account.Staked)
	require.Equal(t, uint64(0), account.EntryEpoch)
	require.Nil(t, account.LastSettledEpoch)

	var ledger LedgerResult
	f.ok("", "pool_getLedger", &ledger)
	require.Equal(t, "1000", ledger.TotalStaked)
	require.Equal(t, "1000", ledger.Held)
	require.False(t, ledger.HasPending)

	var epochID uint64
	f.ok("", "pool_currentEpochId", &epochID)
	require.Equal(t, uint64(0), epochID)

	var cutoff, due int64
	f.ok("", "pool_getCurrentStakeLimitDate", &cutoff)
	f.ok("", "pool_getCurrentRewardDate", &due)
	require.Equal(t, testStart+2*day, cutoff)
	require.Equal(t, cutoff+pool.DefaultSettlementWindow, due)

	var promised string
	f.ok("", "pool_getCurrentPromisedRewards", &promised)
	require.Equal(t, "1000", promised)

	var pending PendingEpochResult
	f.ok("", "pool_getPendingEpoch", &pending)
	require.False(t, pending.Configured)
}

func TestEpochLifecycleOverRPC(t *testing.T) {
	f := newFixture(t, Config{})
	alice := f.token(aliceAddr)
	admin := f.token(adminAddr)
	depositor := f.token(depositorAddr)

	f.ok(alice, "pool_stake", nil, "600")
	f.ok(f.token(bobAddr), "pool_stake", nil, "400")

	var current EpochResult
	f.ok("", "pool_getEpoch", &current, 0)
	nextCutoff := current.RewardDue + pool.DefaultMinConfigGap

	var staged PendingEpochResult
	f.ok(admin, "pool_configureNextEpoch", &staged, "500", nextCutoff)
	require.True(t, staged.Configured)
	require.Equal(t, "500", staged.RewardAmount)

	f.ok(admin, "pool_adjustPendingAmount", &staged, "0x258")
	require.Equal(t, "600", staged.RewardAmount)

	_, resp := f.call(depositor, "pool_depositEpochReward", "1000")
	requireCode(t, resp, codeRejected)
	require.Contains(t, resp.Error.Data.(map[string]interface{})["reason"], "too soon")

	f.now = current.RewardDue
	var deposit DepositResult
	f.ok(depositor, "pool_depositEpochReward", &deposit, "1000")
	require.Equal(t, uint64(0), deposit.Epoch)
	require.Equal(t, uint64(1), deposit.NextEpoch)
	require.Equal(t, "1000", deposit.Retained)
	require.Equal(t, "0", deposit.Refunded)

	var owed string
	f.ok("", "pool_getPendingRewards", &owed, aliceAddr.Hex())
	require.Equal(t, "600", owed)

	var receipt UnstakeResult
	f.ok(alice, "pool_unstake", &receipt)
	require.Equal(t, "600", receipt.Principal)
	require.Equal(t, "600", receipt.Rewards)
	require.Equal(t, "1200", receipt.Payout)
	require.False(t, receipt.Forfeited)
	require.NotNil(t, receipt.SettledThrough)
	require.Equal(t, uint64(0), *receipt.SettledThrough)

	var history []EpochResult
	f.ok("", "pool_getEpochs", &history, 0, 10)
	require.Len(t, history, 2)
	require.True(t, history[0].Finalized)
	require.Equal(t, "600", history[1].RewardAmount)
	require.Equal(t, "400", history[1].QualifyingStake)

	epoch, err := history[0].ToEpoch()
	require.NoError(t, err)
	require.Zero(t, epoch.RewardAmount.Cmp(wei(1000)))
}

func TestWritesRequireValidToken(t *testing.T) {
	f := newFixture(t, Config{})

	status, resp := f.call("", "pool_stake", "1")
	require.Equal(t, http.StatusUnauthorized, status)
	requireCode(t, resp, codeUnauthorized)

	expired, err := issueTokenAt(testSecret, testIssuer, aliceAddr, time.Hour, time.Now().Add(-3*time.Hour))
	require.NoError(t, err)
	status, resp = f.call(expired, "pool_stake", "1")
	require.Equal(t, http.StatusUnauthorized, status)
	requireCode(t, resp, codeUnauthorized)

	foreign, err := IssueToken(testSecret, "someone-else", aliceAddr, time.Hour)
	require.NoError(t, err)
	_, resp = f.call(foreign, "pool_stake", "1")
	requireCode(t, resp, codeUnauthorized)

	forged, err := IssueToken("another-secret-0123456789", testIssuer, aliceAddr, time.Hour)
	require.NoError(t, err)
	_, resp = f.call(forged, "pool_stake", "1")
	requireCode(t, resp, codeUnauthorized)

	ledger, err := f.engine.Ledger()
	require.NoError(t, err)
	require.Zero(t, ledger.TotalStaked.Sign(), "rejected calls must not stake")
}

func TestLedgerRejectionsMapToApplicationCode(t *testing.T) {
	f := newFixture(t, Config{})
	alice := f.token(aliceAddr)

	status, resp := f.call(alice, "pool_stake", "0")
	require.Equal(t, http.StatusConflict, status)
	requireCode(t, resp, codeRejected)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, pool.ErrInvalidAmount.Error(), data["reason"])

	_, resp = f.call(alice, "pool_unstake")
	requireCode(t, resp, codeRejected)
	require.Equal(t, pool.ErrNothingStaked.Error(), resp.Error.Data.(map[string]interface{})["reason"])

	status, resp = f.call(alice, "pool_depositEpochReward", "1000")
	require.Equal(t, http.StatusForbidden, status)
	requireCode(t, resp, codeUnauthorized)

	_, resp = f.call("", "pool_getEpoch", 9)
	requireCode(t, resp, codeRejected)

	status, resp = f.call(f.token(adminAddr), "pool_configureNextEpoch", "500", int64(math.MaxInt64))
	require.Equal(t, http.StatusConflict, status)
	requireCode(t, resp, codeRejected)
	require.Equal(t, pool.ErrCutoffOutOfRange.Error(), resp.Error.Data.(map[string]interface{})["reason"])
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t, Config{})
	alice := f.token(aliceAddr)

	status, resp := f.post("", []byte("{"))
	require.Equal(t, http.StatusBadRequest, status)
	requireCode(t, resp, codeParseError)

	_, resp = f.post("", []byte(`{"jsonrpc":"1.0","method":"pool_getLedger","id":1}`))
	requireCode(t, resp, codeInvalidRequest)

	status, resp = f.call("", "pool_transfer")
	require.Equal(t, http.StatusNotFound, status)
	requireCode(t, resp, codeMethodNotFound)

	cases := []struct {
		name   string
		token  string
		method string
		params []interface{}
	}{
		{"bad address", "", "pool_getAccount", []interface{}{"alice"}},
		{"too many params", alice, "pool_stake", []interface{}{"1", "2"}},
		{"missing params", alice, "pool_configureNextEpoch", []interface{}{"1"}},
		{"amount overflow", alice, "pool_stake", []interface{}{"1" + strings.Repeat("0", 80)}},
		{"negative amount", alice, "pool_stake", []interface{}{"-5"}},
		{"fractional cutoff", alice, "pool_adjustPendingCutoff", []interface{}{1.5}},
		{"zero page", "", "pool_getEpochs", []interface{}{0, 0}},
		{"object param", "", "pool_getEpoch", []interface{}{map[string]int{"id": 1}}},
	}
	for _, tc := range cases {
		status, resp := f.call(tc.token, tc.method, tc.params...)
		require.Equal(t, http.StatusBadRequest, status, tc.name)
		requireCode(t, resp, codeInvalidParams)
	}
}

func TestRoleManagementOverRPC(t *testing.T) {
	f := newFixture(t, Config{})
	admin := f.token(adminAddr)

	var has bool
	f.ok("", "pool_hasRole", &has, pool.RoleDepositor, bobAddr.Hex())
	require.False(t, has)

	var granted RoleResult
	f.ok(admin, "pool_grantRole", &granted, pool.RoleDepositor, bobAddr.Hex())
	require.True(t, granted.Granted)
	f.ok("", "pool_hasRole", &has, pool.RoleDepositor, bobAddr.Hex())
	require.True(t, has)

	_, resp := f.call(f.token(bobAddr), "pool_grantRole", pool.RoleAdministrator, bobAddr.Hex())
	requireCode(t, resp, codeUnauthorized)

	_, resp = f.call(admin, "pool_grantRole", "pool.owner", bobAddr.Hex())
	requireCode(t, resp, codeRejected)

	f.ok(admin, "pool_revokeRole", nil, pool.RoleDepositor, bobAddr.Hex())
	f.ok("", "pool_hasRole", &has, pool.RoleDepositor, bobAddr.Hex())
	require.False(t, has)
}

func TestRateLimitPerClient(t *testing.T) {
	f := newFixture(t, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 2})
	for i := 0; i < 2; i++ {
		status, resp := f.call("", "pool_currentEpochId")
		require.Equal(t, http.StatusOK, status)
		require.Nil(t, resp.Error)
	}
	status, resp := f.call("", "pool_currentEpochId")
	require.Equal(t, http.StatusTooManyRequests, status)
	requireCode(t, resp, codeRateLimited)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	f.ok("", "pool_getLedger", nil)

	resp, err := f.ts.Client().Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = f.ts.Client().Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "ethpool_rpc_requests_total")

	resp, err = f.ts.Client().Get(f.ts.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthzFailsBeforeInit(t *testing.T) {
	server, err := NewServer(pool.NewEngine(pool.NewMemStore()), Config{JWTSecret: testSecret}, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	client := NewClient(f.ts.URL+"/rpc", f.token(aliceAddr)).WithHTTPClient(f.ts.Client())

	var staked StakeResult
	require.NoError(t, client.Call(context.Background(), "pool_stake", &staked, "42"))
	require.Equal(t, "42", staked.Amount)

	err := client.Call(context.Background(), "pool_stake", nil, "0")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, codeRejected, rpcErr.Code)
}

func TestParseAmount(t *testing.T) {
	value, err := parseAmount("0x10")
	require.NoError(t, err)
	require.Equal(t, int64(16), value.Int64())

	value, err = parseAmount(" 1000000000000000000000 ")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", value.String())

	value, err = parseAmount("0")
	require.NoError(t, err)
	require.Zero(t, value.Sign())

	for _, bad := range []string{"", "-1", "1.5", "0xzz", "1" + strings.Repeat("0", 78)} {
		_, err := parseAmount(bad)
		require.Error(t, err, bad)
	}
}
