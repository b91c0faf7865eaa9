package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"nhbstake/core/events"
	"nhbstake/crypto"
	"nhbstake/native/common"
	"nhbstake/native/stake"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func raw(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

var (
	tokenAddr   = raw(0xAA)
	adminAddr   = raw(0xAD)
	stakerAddr  = raw(0x01)
	creatorAddr = raw(0xC0)

	admin  = crypto.Format(adminAddr)
	staker = crypto.Format(stakerAddr)
)

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

type testServer struct {
	*httptest.Server
	clock  fakeClock
	pauses *common.Pauses
	sink   *events.Recorder
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	var clock fakeClock = clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	pauses := common.NewPauses()
	sink := &events.Recorder{}

	engine := stake.NewEngine()
	engine.SetState(stake.NewLedger())
	engine.SetPauses(pauses)
	engine.SetNowFunc(func() int64 { return clock.Now().Unix() })
	a := adminAddr
	require.NoError(t, engine.Instantiate(creatorAddr, stake.InstantiateMsg{
		StakedToken:      tokenAddr,
		TokensPerPower:   big.NewInt(1000),
		MinBond:          big.NewInt(1000),
		UnbondingPeriods: []uint64{100},
		MaxDistributions: 2,
		Admin:            &a,
	}))

	cfg.Clock = clock
	cfg.Events = sink
	srv, err := New(engine, cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		http.DefaultClient.CloseIdleConnections()
		ts.Close()
	})
	return &testServer{Server: ts, clock: clock, pauses: pauses, sink: sink}
}

func (ts *testServer) post(t *testing.T, op, sender string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/ops/"+op, bytes.NewReader(payload))
	require.NoError(t, err)
	if sender != "" {
		req.Header.Set(headerSender, sender)
	}
	return ts.do(t, req)
}

func (ts *testServer) get(t *testing.T, path string) (int, any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (ts *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestBondDistributeWithdraw(t *testing.T) {
	ts := newTestServer(t, Config{})

	status, body := ts.post(t, "createDistributionFlow", admin, map[string]any{
		"manager":     admin,
		"asset":       "juno",
		"multipliers": []map[string]any{{"period": 100, "multiplier": "1"}},
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status, body)
	evts := body["events"].([]any)
	require.Len(t, evts, 1)
	require.Equal(t, events.TypeStakeBonded, evts[0].(map[string]any)["type"])

	status, body = ts.post(t, "distributeRewards", admin, map[string]any{
		"funds": []map[string]any{{"asset": "juno", "amount": "400"}},
	})
	require.Equal(t, http.StatusOK, status, body)

	status, view := ts.get(t, "/v1/query/withdrawableRewards?address="+staker)
	require.Equal(t, http.StatusOK, status)
	rewards := view.([]any)
	require.Len(t, rewards, 1)
	require.Equal(t, "400", rewards[0].(map[string]any)["amount"])

	status, body = ts.post(t, "withdrawRewards", staker, map[string]any{})
	require.Equal(t, http.StatusOK, status, body)
	transfers := body["transfers"].([]any)
	require.Len(t, transfers, 1)
	transfer := transfers[0].(map[string]any)
	require.Equal(t, "juno", transfer["asset"])
	require.Equal(t, staker, transfer["recipient"])
	require.Equal(t, "400", transfer["amount"])

	require.Contains(t, ts.sink.Types(), events.TypeRewardsWithdrawn)

	status, view = ts.get(t, "/v1/query/staked?address="+staker+"&period=100")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "4000", view.(map[string]any)["stake"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, Config{})

	status, body := ts.post(t, "unbond", staker, map[string]any{"period": 100, "amount": "10"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation", body["kind"])

	status, body = ts.post(t, "updateAdmin", staker, map[string]any{"admin": staker})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "authorization", body["kind"])

	status, body = ts.post(t, "claim", staker, map[string]any{})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "state", body["kind"])

	status, _ = ts.post(t, "bond", "", map[string]any{"period": 100, "amount": "1"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.post(t, "bond", "not-bech32", map[string]any{"period": 100, "amount": "1"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.post(t, "explode", staker, map[string]any{})
	require.Equal(t, http.StatusNotFound, status)

	status, _ = ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "abc"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.post(t, "bond", staker, map[string]any{"bogus": true})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.get(t, "/v1/query/nothing")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = ts.get(t, "/v1/query/staked?address="+staker+"&period=x")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestPausedModule(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.pauses.Set(stake.ModuleName, true)
	status, body := ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "paused", body["kind"])

	ts.pauses.Set(stake.ModuleName, false)
	status, _ = ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status)
}

func TestRateLimitPerSender(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}})
	status, _ := ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusTooManyRequests, status)

	// other senders keep their own bucket
	status, _ = ts.post(t, "bond", admin, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status)
}

func TestQuotaResetsPerEpoch(t *testing.T) {
	ts := newTestServer(t, Config{Quota: common.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}})
	status, _ := ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status)
	status, body := ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "throttled", body["kind"])

	ts.clock.Advance(time.Minute)
	status, _ = ts.post(t, "bond", staker, map[string]any{"period": 100, "amount": "4000"})
	require.Equal(t, http.StatusOK, status)
}

func TestQuotaCountsMassBondStakers(t *testing.T) {
	ts := newTestServer(t, Config{Quota: common.Quota{MaxStakersPerEpoch: 1}})
	status, _ := ts.post(t, "massBond", admin, map[string]any{
		"period": 100,
		"amount": "2000",
		"delegations": []map[string]any{
			{"staker": staker, "amount": "1000"},
			{"staker": admin, "amount": "1000"},
		},
	})
	require.Equal(t, http.StatusTooManyRequests, status)
}

func TestRequestIDAndCatalog(t *testing.T) {
	ts := newTestServer(t, Config{})
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/", nil)
	require.NoError(t, err)
	id := "6f1c2a4e-58b1-4c2e-9d7e-3f3b8a1d2c10"
	req.Header.Set(headerRequestID, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, id, resp.Header.Get(headerRequestID))

	var catalog map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))
	require.Contains(t, catalog["operations"], "bond")
	require.Contains(t, catalog["queries"], "annualizedRewards")

	status, health := ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", health.(map[string]any)["status"])

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestRoutesEmitServerSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	ts := newTestServer(t, Config{})
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/query/config", nil)
	require.NoError(t, err)
	id := "0b6f3c1a-2d4e-4f5a-8b9c-1d2e3f4a5b6c"
	req.Header.Set(headerRequestID, id)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	status, _ := ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, status)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, "staked.query", ended[0].Name())
	require.Equal(t, "staked.health", ended[1].Name())
	require.Contains(t, ended[0].Attributes(), attribute.String("request.id", id))
}
