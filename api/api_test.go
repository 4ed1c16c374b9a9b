// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/los/api/ratelimit"
	"github.com/luxfi/los/config"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/utils/units"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

const testBurnTxID = "b5a2f0c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f"

type testEnv struct {
	handler http.Handler
	node    *node.Node
	devs    []*keys.KeyPair
}

func newTestEnv(t *testing.T, overrides ...func(*config.Config)) *testEnv {
	t.Helper()
	require := require.New(t)

	c := config.TestnetConfig()
	c.DBType = config.MemDB
	c.Consensus.TickInterval = 5 * time.Millisecond
	c.Consensus.ViewTimeout = 500 * time.Millisecond
	c.ConfirmTimeout = 5 * time.Second
	c.Burn.Static = []config.StaticBurn{{
		Coin:   "btc",
		TxID:   testBurnTxID,
		Amount: "100000",
	}}
	c.RateLimit.Enabled = false
	for _, override := range overrides {
		override(&c)
	}

	clock := &mockable.Clock{}
	g, vals, devWallets, err := genesis.NewTestnet(1, 2, clock.Time().Unix())
	require.NoError(err)
	kp, err := keys.FromSecretKeyHex(vals[0].SecretKey)
	require.NoError(err)
	env := &testEnv{}
	for _, w := range devWallets {
		dev, err := keys.FromSecretKeyHex(w.SecretKey)
		require.NoError(err)
		env.devs = append(env.devs, dev)
	}

	registry := prometheus.NewRegistry()
	env.node, err = node.New(c, g, kp, memdb.New(), clock, log.NewNoOpLogger(), registry)
	require.NoError(err)
	env.handler = NewHandler(env.node, log.NewNoOpLogger(), registry)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.node.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(<-done)
	})
	return env
}

// call serves one request and decodes the JSON response into a map.
func (e *testEnv) call(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	rec := e.raw(t, method, path, body)
	return rec.Code, decodeBody(t, rec.Body.Bytes())
}

func (e *testEnv) raw(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) balance(t *testing.T, addr keys.Address) uint64 {
	t.Helper()
	code, out := e.call(t, http.MethodGet, "/balance/"+addr.String(), nil)
	require.Equal(t, http.StatusOK, code)
	return cil(t, out["balance_cil"])
}

// decodeBody keeps numbers exact; CIL amounts overflow float64 precision.
func decodeBody(t *testing.T, b []byte) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out), string(b))
	return out
}

func cil(t *testing.T, v any) uint64 {
	t.Helper()
	n, ok := v.(json.Number)
	require.True(t, ok, "%v is not a number", v)
	u, err := strconv.ParseUint(n.String(), 10, 64)
	require.NoError(t, err)
	return u
}

func requireError(t *testing.T, code int, out map[string]any, expected int) {
	t.Helper()
	require.Equal(t, expected, code, out)
	require.Equal(t, "error", out["status"])
	require.NotEmpty(t, out["msg"])
}

func TestErrorDiscipline(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		expected int
	}{
		{
			name:     "unknown route",
			method:   http.MethodGet,
			path:     "/does-not-exist",
			expected: http.StatusNotFound,
		},
		{
			name:     "wrong method",
			method:   http.MethodGet,
			path:     "/send",
			expected: http.StatusMethodNotAllowed,
		},
		{
			name:     "malformed json",
			method:   http.MethodPost,
			path:     "/send",
			body:     "{not json",
			expected: http.StatusBadRequest,
		},
		{
			name:     "empty body",
			method:   http.MethodPost,
			path:     "/faucet",
			body:     "",
			expected: http.StatusBadRequest,
		},
		{
			name:     "malformed address",
			method:   http.MethodGet,
			path:     "/balance/0xdeadbeef",
			expected: http.StatusBadRequest,
		},
		{
			name:     "unknown block",
			method:   http.MethodGet,
			path:     "/block/nope",
			expected: http.StatusNotFound,
		},
		{
			name:     "deploy contract",
			method:   http.MethodPost,
			path:     "/deploy-contract",
			body:     map[string]string{"code": "00"},
			expected: http.StatusNotImplemented,
		},
		{
			name:     "call contract",
			method:   http.MethodPost,
			path:     "/call-contract",
			body:     map[string]string{},
			expected: http.StatusNotImplemented,
		},
		{
			name:     "get contract",
			method:   http.MethodGet,
			path:     "/contract/abc",
			expected: http.StatusNotImplemented,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, out := env.call(t, test.method, test.path, test.body)
			requireError(t, code, out, test.expected)
		})
	}
}

func TestNodeQueries(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	code, out := env.call(t, http.MethodGet, "/health", nil)
	require.Equal(http.StatusOK, code)
	require.Equal("healthy", out["status"])
	require.Equal(node.Version, out["version"])
	chain := out["chain"].(map[string]any)
	require.Equal(env.node.Genesis().ID().String(), chain["id"])
	database := out["database"].(map[string]any)
	require.Equal(chain["accounts"], database["accounts_count"])
	require.Equal(chain["blocks"], database["blocks_count"])

	code, out = env.call(t, http.MethodGet, "/node-info", nil)
	require.Equal(http.StatusOK, code)
	require.Equal(env.node.Address().String(), out["address"])
	protocol := out["protocol"].(map[string]any)
	require.Equal(units.LOS, cil(t, protocol["cil_per_los"]))
	require.Equal(uint64(100_000), cil(t, protocol["base_fee_cil"]))

	code, out = env.call(t, http.MethodGet, "/whoami", nil)
	require.Equal(http.StatusOK, code)
	require.Equal(env.node.Address().String(), out["address"])
	require.Equal(env.node.Address().Short(), out["short"])

	code, out = env.call(t, http.MethodGet, "/supply", nil)
	require.Equal(http.StatusOK, code)
	require.Equal(ledger.TotalSupply, cil(t, out["total_supply_cil"]))
	require.Equal(
		cil(t, out["total_supply_cil"]),
		cil(t, out["circulating_supply_cil"])+cil(t, out["remaining_supply_cil"]),
	)

	code, out = env.call(t, http.MethodGet, "/validators", nil)
	require.Equal(http.StatusOK, code)
	vals := out["validators"].([]any)
	require.Len(vals, 1)
	val := vals[0].(map[string]any)
	require.Equal(env.node.Address().String(), val["address"])
	require.Equal("1000.00000000000", val["stake"])
	require.Equal(true, val["is_genesis"])
	require.Equal(true, val["has_min_stake"])

	code, out = env.call(t, http.MethodGet, "/consensus", nil)
	require.Equal(http.StatusOK, code)
	safety := out["safety"].(map[string]any)
	require.Equal(json.Number("1"), safety["active_validators"])
	require.Equal(true, safety["byzantine_safe"])
	require.Equal(json.Number("0"), safety["max_faulty"])
	require.Equal(json.Number("1"), safety["quorum_threshold"])
	require.Equal("pbft", out["protocol"])

	code, out = env.call(t, http.MethodGet, "/reward-info", nil)
	require.Equal(http.StatusOK, code)
	cfg := out["config"].(map[string]any)
	require.Equal("sqrt_stake", cfg["distribution_model"])
	require.Equal(false, cfg["genesis_excluded"])
	require.Equal(json.Number("48"), cfg["halving_interval_epochs"])
	epoch := out["epoch"].(map[string]any)
	require.Equal(5_000*units.LOS, cil(t, epoch["epoch_reward_rate_cil"]))
	require.Equal(json.Number("0"), epoch["halvings_occurred"])
	pool := out["pool"].(map[string]any)
	require.Equal(500_000*units.LOS, cil(t, pool["remaining_cil"])+cil(t, pool["total_distributed_cil"]))

	code, out = env.call(t, http.MethodGet, "/slashing", nil)
	require.Equal(http.StatusOK, code)
	stats := out["safety_stats"].(map[string]any)
	require.Equal(json.Number("0"), stats["total_slash_events"])
	require.Equal(json.Number("0"), stats["banned_count"])

	code, out = env.call(t, http.MethodGet, "/slashing/"+env.node.Address().String(), nil)
	require.Equal(http.StatusOK, code)
	require.Contains(out, "profile")

	code, out = env.call(t, http.MethodGet, "/mempool/stats", nil)
	require.Equal(http.StatusOK, code)
	require.Contains(out, "pending")
	require.Contains(out, "unique_senders")

	code, out = env.call(t, http.MethodGet, "/peers", nil)
	require.Equal(http.StatusOK, code)
	require.Empty(out["peers"])

	rec := env.raw(t, http.MethodGet, "/metrics", nil)
	require.Equal(http.StatusOK, rec.Code)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		require.True(strings.HasPrefix(line, "los_"), line)
	}
}

func TestFaucetScenario(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	code, out := env.call(t, http.MethodGet, "/validator/generate", nil)
	require.Equal(http.StatusOK, code)
	addr := keys.Address(out["address"].(string))
	require.Len(strings.Fields(out["seed_phrase"].(string)), 24)
	require.Zero(env.balance(t, addr))

	code, out = env.call(t, http.MethodPost, "/faucet", map[string]string{"address": addr.String()})
	require.Equal(http.StatusOK, code, out)
	require.Equal("success", out["status"])
	require.Equal("5000.00000000000", out["amount"])
	require.Equal(5_000*units.LOS, cil(t, out["new_balance_cil"]))
	require.Equal(5_000*units.LOS, env.balance(t, addr))

	rec := env.raw(t, http.MethodPost, "/faucet", map[string]string{"address": addr.String()})
	require.Equal(http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(err)
	require.Positive(retry)
	require.Equal(5_000*units.LOS, env.balance(t, addr))

	code, out = env.call(t, http.MethodPost, "/faucet", map[string]string{"address": "nope"})
	requireError(t, code, out, http.StatusBadRequest)
}

func TestSendScenario(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	sender, recipient := env.devs[0], env.devs[1]
	senderBefore := env.balance(t, sender.Address)
	recipientBefore := env.balance(t, recipient.Address)

	code, out := env.call(t, http.MethodGet, "/fee-estimate/"+sender.Address.String(), nil)
	require.Equal(http.StatusOK, code)
	estimate := cil(t, out["estimated_fee_cil"])

	amount := 10 * units.LOS
	nonce := time.Now().UnixNano()
	transfer := &txs.Transfer{
		From:   sender.Address,
		To:     recipient.Address,
		Amount: amount,
		Fee:    estimate,
		Nonce:  nonce,
	}
	code, out = env.call(t, http.MethodPost, "/send", map[string]any{
		"from":       sender.Address,
		"to":         recipient.Address,
		"amount":     10,
		"fee_cil":    strconv.FormatUint(estimate, 10),
		"nonce":      nonce,
		"public_key": sender.PublicKeyHex(),
		"signature":  hex.EncodeToString(sender.Sign(transfer.SigningMessage())),
	})
	require.Equal(http.StatusOK, code, out)
	require.Equal("success", out["status"])
	fee := cil(t, out["fee_paid_cil"])
	require.Equal(estimate, fee)
	require.Equal(senderBefore-amount-fee, env.balance(t, sender.Address))
	require.Equal(recipientBefore+amount, env.balance(t, recipient.Address))

	code, out = env.call(t, http.MethodGet, "/transaction/"+out["tx_hash"].(string), nil)
	require.Equal(http.StatusOK, code)
	tx := out["transaction"].(map[string]any)
	require.Equal(true, tx["confirmed"])
	require.Equal(sender.Address.String(), tx["from"])
	require.Equal(recipient.Address.String(), tx["to"])

	// Replaying the history of the sender reproduces its balance.
	code, out = env.call(t, http.MethodGet, "/history/"+sender.Address.String(), nil)
	require.Equal(http.StatusOK, code)
	var replayed int64
	for _, raw := range out["transactions"].([]any) {
		b := raw.(map[string]any)
		amount := int64(cil(t, b["amount"]))
		switch ledger.BlockType(b["type"].(string)) {
		case ledger.Send:
			replayed -= amount + int64(cil(t, b["fee"]))
		case ledger.Slash:
			replayed -= amount
		default:
			replayed += amount
		}
	}
	require.Equal(int64(env.balance(t, sender.Address)), replayed)

	// The node signs for itself once it can afford it without dropping
	// below the minimum stake.
	code, out = env.call(t, http.MethodPost, "/faucet", map[string]string{"address": env.node.Address().String()})
	require.Equal(http.StatusOK, code, out)
	before := env.balance(t, recipient.Address)
	code, out = env.call(t, http.MethodPost, "/send", map[string]any{
		"target": recipient.Address,
		"amount": "1.5",
	})
	require.Equal(http.StatusOK, code, out)
	require.Equal(before+3*units.LOS/2, env.balance(t, recipient.Address))

	// The block of the send is reachable by its hash.
	code, out = env.call(t, http.MethodGet, "/blocks/recent?limit=5", nil)
	require.Equal(http.StatusOK, code)
	blocks := out["blocks"].([]any)
	require.NotEmpty(blocks)
	hash := blocks[0].(map[string]any)["hash"].(string)
	code, out = env.call(t, http.MethodGet, "/block/"+hash, nil)
	require.Equal(http.StatusOK, code)
	require.Equal(hash, out["block"].(map[string]any)["hash"])

	code, out = env.call(t, http.MethodGet, "/search/"+hash, nil)
	require.Equal(http.StatusOK, code)
	require.Equal("block", out["type"])
	code, out = env.call(t, http.MethodGet, "/search/"+recipient.Address.String(), nil)
	require.Equal(http.StatusOK, code)
	require.Equal("address", out["type"])
}

func TestSendRejections(t *testing.T) {
	env := newTestEnv(t)
	sender, recipient := env.devs[0], env.devs[1]

	// signed builds a send of 10 LOS signed with fee that claims claimedFee.
	signed := func(fee, claimedFee uint64) map[string]any {
		transfer := &txs.Transfer{
			From:   sender.Address,
			To:     recipient.Address,
			Amount: 10 * units.LOS,
			Fee:    fee,
			Nonce:  time.Now().UnixNano(),
		}
		return map[string]any{
			"from":       sender.Address,
			"to":         recipient.Address,
			"amount_cil": strconv.FormatUint(transfer.Amount, 10),
			"fee_cil":    strconv.FormatUint(claimedFee, 10),
			"nonce":      transfer.Nonce,
			"public_key": sender.PublicKeyHex(),
			"signature":  hex.EncodeToString(sender.Sign(transfer.SigningMessage())),
		}
	}
	baseFee := env.node.Config().Fee.BaseFee

	tests := []struct {
		name     string
		body     map[string]any
		expected int
	}{
		{
			name: "self transfer",
			body: map[string]any{
				"from":       sender.Address,
				"to":         sender.Address,
				"amount":     1,
				"public_key": sender.PublicKeyHex(),
				"signature":  hex.EncodeToString(sender.Sign([]byte("x"))),
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "node self transfer",
			body: map[string]any{
				"to":     env.node.Address(),
				"amount": 1,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "zero amount",
			body: map[string]any{
				"to":     recipient.Address,
				"amount": 0,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "negative amount",
			body: map[string]any{
				"to":     recipient.Address,
				"amount": -5,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "malformed recipient",
			body: map[string]any{
				"to":     "0x1234",
				"amount": 1,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "malformed sender",
			body: map[string]any{
				"from":   "bogus",
				"to":     recipient.Address,
				"amount": 1,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "unsigned foreign sender",
			body: map[string]any{
				"from":   sender.Address,
				"to":     recipient.Address,
				"amount": 1,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "forged signature",
			body: map[string]any{
				"from":       sender.Address,
				"to":         recipient.Address,
				"amount":     1,
				"fee_cil":    "100000",
				"public_key": recipient.PublicKeyHex(),
				"signature":  hex.EncodeToString(recipient.Sign([]byte("x"))),
			},
			expected: http.StatusUnauthorized,
		},
		{
			name: "signed without fee",
			body: func() map[string]any {
				body := signed(baseFee, baseFee)
				delete(body, "fee_cil")
				return body
			}(),
			expected: http.StatusBadRequest,
		},
		{
			name:     "fee raised after signing",
			body:     signed(baseFee, 1_000*units.LOS),
			expected: http.StatusUnauthorized,
		},
		{
			name:     "fee below base fee",
			body:     signed(baseFee-1, baseFee-1),
			expected: http.StatusBadRequest,
		},
		{
			name:     "fee above maximum",
			body:     signed(env.node.Config().Fee.Max()+1, env.node.Config().Fee.Max()+1),
			expected: http.StatusBadRequest,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			before := env.balance(t, sender.Address)
			code, out := env.call(t, http.MethodPost, "/send", test.body)
			requireError(t, code, out, test.expected)
			require.Equal(t, before, env.balance(t, sender.Address))
		})
	}
}

func TestFeeEstimateMonotonic(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	code, out := env.call(t, http.MethodPost, "/faucet", map[string]string{"address": env.node.Address().String()})
	require.Equal(http.StatusOK, code, out)

	path := "/fee-estimate/" + env.node.Address().String()
	var last uint64
	for i := 0; i < 12; i++ {
		code, out := env.call(t, http.MethodGet, path, nil)
		require.Equal(http.StatusOK, code)
		fee := cil(t, out["estimated_fee_cil"])
		require.GreaterOrEqual(fee, uint64(100_000))
		require.GreaterOrEqual(fee, last)
		last = fee

		code, out = env.call(t, http.MethodPost, "/send", map[string]any{
			"to":     env.devs[0].Address,
			"amount": 1,
		})
		require.Equal(http.StatusOK, code, out)
	}
	require.Greater(last, uint64(100_000))
}

func TestRateLimited(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = ratelimit.DefaultConfig()
		c.RateLimit.PerClient = ratelimit.Limit{Requests: 1, Interval: time.Minute, Burst: 4}
	})

	body := map[string]string{
		"coin_type":         "btc",
		"txid":              testBurnTxID,
		"recipient_address": env.devs[0].Address.String(),
	}
	code, out := env.call(t, http.MethodPost, "/burn", body)
	require.Equal(http.StatusOK, code, out)

	rec := env.raw(t, http.MethodPost, "/burn", body)
	requireError(t, rec.Code, decodeBody(t, rec.Body.Bytes()), http.StatusTooManyRequests)
	require.Equal("60", rec.Header().Get("Retry-After"))

	// Exempt paths never count against the client.
	for range 10 {
		code, _ = env.call(t, http.MethodGet, "/health", nil)
		require.Equal(http.StatusOK, code)
	}

	// The refused burn gave its client token back: three of four remain.
	for range 3 {
		code, out = env.call(t, http.MethodGet, "/supply", nil)
		require.Equal(http.StatusOK, code, out)
	}
	code, out = env.call(t, http.MethodGet, "/supply", nil)
	requireError(t, code, out, http.StatusTooManyRequests)
}

func TestBurnEndpoints(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	recipient := env.devs[0].Address
	before := env.balance(t, recipient)
	body := map[string]string{
		"coin_type":         "btc",
		"txid":              testBurnTxID,
		"recipient_address": recipient.String(),
	}
	code, out := env.call(t, http.MethodPost, "/burn", body)
	require.Equal(http.StatusOK, code, out)
	minted := cil(t, out["minted_cil"])
	require.Equal(6_000*units.LOS, minted)
	require.Equal("60.000000", out["usd_value"])
	require.Equal(before+minted, env.balance(t, recipient))

	code, out = env.call(t, http.MethodPost, "/burn", body)
	requireError(t, code, out, http.StatusConflict)
	require.Equal(before+minted, env.balance(t, recipient))

	code, out = env.call(t, http.MethodPost, "/burn", map[string]string{
		"coin_type": "doge",
		"txid":      testBurnTxID,
	})
	requireError(t, code, out, http.StatusBadRequest)

	code, out = env.call(t, http.MethodPost, "/burn", map[string]string{
		"coin_type": "btc",
		"txid":      "not-a-txid",
	})
	requireError(t, code, out, http.StatusBadRequest)

	code, out = env.call(t, http.MethodPost, "/burn", map[string]string{
		"coin_type": "btc",
		"txid":      strings.Repeat("0", 64),
	})
	requireError(t, code, out, http.StatusNotFound)

	code, out = env.call(t, http.MethodGet, "/supply", nil)
	require.Equal(http.StatusOK, code)
	require.Equal("60.000000", out["total_burned_usd"])

	code, out = env.call(t, http.MethodPost, "/reset-burn-txid", map[string]any{
		"txids": []string{testBurnTxID},
	})
	require.Equal(http.StatusOK, code, out)
	require.Equal(json.Number("1"), out["reset"])

	code, out = env.call(t, http.MethodPost, "/reset-burn-txid", map[string]string{"txid": "nonexistent"})
	requireError(t, code, out, http.StatusBadRequest)

	code, out = env.call(t, http.MethodPost, "/burn", body)
	require.Equal(http.StatusOK, code, out)
	require.Equal(before+2*minted, env.balance(t, recipient))
}

func TestKeyEndpoints(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	_, first := env.call(t, http.MethodGet, "/validator/generate", nil)
	_, second := env.call(t, http.MethodGet, "/validator/generate", nil)
	require.NotEqual(first["address"], second["address"])

	seed := first["seed_phrase"].(string)
	for i := 0; i < 2; i++ {
		rec := env.raw(t, http.MethodPost, "/validator/import-seed", map[string]string{"seed_phrase": seed})
		require.Equal(http.StatusOK, rec.Code)
		require.NotContains(rec.Body.String(), seed)
		require.NotContains(rec.Body.String(), "seed_phrase")

		out := decodeBody(t, rec.Body.Bytes())
		require.Equal(first["address"], out["address"])
		require.Equal(first["public_key"], out["public_key"])
	}

	code, out := env.call(t, http.MethodPost, "/validator/import-seed", map[string]string{"seed_phrase": "not a real mnemonic"})
	requireError(t, code, out, http.StatusBadRequest)

	code, out = env.call(t, http.MethodPost, "/validator/import", map[string]string{
		"private_key": env.devs[0].SecretKeyHex(),
	})
	require.Equal(http.StatusOK, code)
	require.Equal(env.devs[0].Address.String(), out["address"])
	require.NotContains(out, "private_key")

	code, out = env.call(t, http.MethodPost, "/validator/import", map[string]string{"private_key": "zz"})
	requireError(t, code, out, http.StatusBadRequest)
}

func TestRegisterValidatorRejections(t *testing.T) {
	env := newTestEnv(t)
	kp := env.devs[0]
	now := time.Now().Unix()

	sign := func(addr keys.Address, ts int64) string {
		return hex.EncodeToString(kp.Sign(txs.RegisterMessage(addr, ts)))
	}

	tests := []struct {
		name     string
		body     map[string]any
		expected int
	}{
		{
			name: "malformed address",
			body: map[string]any{
				"address":    "LOSnope",
				"public_key": kp.PublicKeyHex(),
				"signature":  sign(kp.Address, now),
				"timestamp":  now,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "stale timestamp",
			body: map[string]any{
				"address":    kp.Address,
				"public_key": kp.PublicKeyHex(),
				"signature":  sign(kp.Address, now-3600),
				"timestamp":  now - 3600,
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "wrong signature",
			body: map[string]any{
				"address":    kp.Address,
				"public_key": kp.PublicKeyHex(),
				"signature":  sign(kp.Address, now+1),
				"timestamp":  now,
			},
			expected: http.StatusUnauthorized,
		},
		{
			name: "bad public key",
			body: map[string]any{
				"address":    kp.Address,
				"public_key": "abcd",
				"signature":  sign(kp.Address, now),
				"timestamp":  now,
			},
			expected: http.StatusBadRequest,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, out := env.call(t, http.MethodPost, "/register-validator", test.body)
			requireError(t, code, out, test.expected)
		})
	}

	code, out := env.call(t, http.MethodPost, "/unregister-validator", map[string]any{
		"address":   kp.Address,
		"signature": hex.EncodeToString(kp.Sign([]byte("x"))),
	})
	require.GreaterOrEqual(t, code, http.StatusBadRequest)
	require.Equal(t, "error", out["status"])
}

func TestStatusCode(t *testing.T) {
	require := require.New(t)

	require.Equal(http.StatusNotFound, StatusCode(ledger.ErrNotFound))
	require.Equal(http.StatusConflict, StatusCode(ledger.ErrBurnAlreadyClaimed))
	require.Equal(http.StatusTooManyRequests, StatusCode(node.ErrFaucetCooldown))
	require.Equal(http.StatusBadRequest, StatusCode(keys.ErrInvalidAddress))
	require.Equal(http.StatusInternalServerError, StatusCode(context.Canceled))
}
