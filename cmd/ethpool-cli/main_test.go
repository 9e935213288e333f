package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ethpool/native/pool"
	"ethpool/rpc"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testStart  = int64(1_700_000_000)
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

type harness struct {
	t  *testing.T
	ts *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	auth := pool.NewStaticAuthority(map[string][]common.Address{
		pool.RoleAdministrator: {admin},
	})
	engine := pool.NewEngine(pool.NewMemStore())
	engine.SetAuthority(auth)
	engine.SetRoleRegistry(auth)
	engine.SetNowFunc(func() int64 { return testStart })
	require.NoError(t, engine.Init(pool.GenesisConfig{
		RewardAmount: big.NewInt(1000),
		StakeCutoff:  testStart + 3600,
	}))
	server, err := rpc.NewServer(engine, rpc.Config{JWTSecret: testSecret, JWTIssuer: "ethpool"}, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, ts: ts}
}

// run executes the CLI and returns stdout.
func (h *harness) run(token string, args ...string) (string, error) {
	h.t.Helper()
	opts := &options{httpClient: h.ts.Client()}
	root := newRootCommand(opts)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	full := append([]string{"--rpc", h.ts.URL + "/rpc", "--token", token}, args...)
	root.SetArgs(full)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (h *harness) mint(addr common.Address) string {
	h.t.Helper()
	out, err := h.run("", "token", "--address", addr.Hex(), "--secret", testSecret, "--ttl", "1h")
	require.NoError(h.t, err)
	return strings.TrimSpace(out)
}

func TestStakeAndInspectAccount(t *testing.T) {
	h := newHarness(t)
	token := h.mint(alice)

	out, err := h.run(token, "stake", "100")
	require.NoError(t, err)
	var receipt rpc.StakeResult
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Equal(t, "100", receipt.Staked)
	require.True(t, receipt.Qualified)

	out, err = h.run("", "account", alice.Hex())
	require.NoError(t, err)
	var account rpc.AccountResult
	require.NoError(t, json.Unmarshal([]byte(out), &account))
	require.Equal(t, "100", account.Staked)

	out, err = h.run("", "epoch", "dates")
	require.NoError(t, err)
	require.Contains(t, out, `"stakeCutoff": 1700003600`)
	require.Contains(t, out, `"promisedRewards": "1000"`)
}

func TestWritesNeedToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "stake", "100")
	require.ErrorContains(t, err, "need a token")
}

func TestDepositWithoutRoleIsRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(h.mint(alice), "deposit", "1000")
	var rpcErr *rpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32001, rpcErr.Code)
}

func TestRoleCommandValidatesRole(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(h.mint(admin), "role", "grant", "pool.owner", alice.Hex())
	require.ErrorContains(t, err, "unknown role")

	_, err = h.run(h.mint(admin), "role", "grant", pool.RoleDepositor, alice.Hex())
	require.NoError(t, err)
	out, err := h.run("", "role", "check", pool.RoleDepositor, alice.Hex())
	require.NoError(t, err)
	require.Equal(t, "true", strings.TrimSpace(out))
}

func TestExportWritesFileAndChecksum(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	out, err := h.run("", "export", "--dir", dir, "--format", "jsonl")
	require.NoError(t, err)
	require.Contains(t, out, "wrote 1 epochs")

	data, err := os.ReadFile(filepath.Join(dir, "epochs.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"reward_amount":"1000"`)
	sum, err := os.ReadFile(filepath.Join(dir, "epochs.jsonl.sha256"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(strings.TrimSpace(string(sum)), "epochs.jsonl"))
}

func TestExportWritesParquet(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	out, err := h.run("", "export", "--dir", dir, "--format", "parquet", "--name", "history")
	require.NoError(t, err)
	require.Contains(t, out, "wrote 1 epochs")

	data, err := os.ReadFile(filepath.Join(dir, "history.parquet"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	_, err = os.Stat(filepath.Join(dir, "history.parquet.sha256"))
	require.NoError(t, err)
}

func TestParseInstant(t *testing.T) {
	got, err := parseInstant("1700000000")
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), got)

	got, err = parseInstant("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), got)

	_, err = parseInstant("tomorrow")
	require.Error(t, err)
}
