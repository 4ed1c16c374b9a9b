// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api implements the HTTP+JSON interface of a LOS node.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/los/api/ratelimit"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/node"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	// maxBodySize bounds request bodies. Consensus messages carry ML-DSA
	// signatures of every voter.
	maxBodySize = 8 << 20
)

// result is embedded in every success response.
type result struct {
	Status string `json:"status"`
}

var success = result{Status: statusSuccess}

type service struct {
	log     log.Logger
	node    *node.Node
	limiter *ratelimit.Limiter
}

// NewHandler returns the router serving n. gatherer backs GET /metrics.
func NewHandler(n *node.Node, logger log.Logger, gatherer prometheus.Gatherer) http.Handler {
	s := &service{
		log:     logger,
		node:    n,
		limiter: ratelimit.New(n.Config().RateLimit, n.Clock()),
	}

	r := mux.NewRouter()
	r.Use(s.rateLimit)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, fmt.Errorf("%w: %s %s", ErrUnknownRoute, r.Method, r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, fmt.Errorf("%w: %s %s", ErrMethodNotAllowed, r.Method, r.URL.Path))
	})

	get := func(path string, h http.HandlerFunc) {
		r.HandleFunc(path, h).Methods(http.MethodGet)
	}
	post := func(path string, h http.HandlerFunc) {
		r.HandleFunc(path, h).Methods(http.MethodPost)
	}

	// node
	get("/health", s.health)
	get("/node-info", s.nodeInfo)
	get("/whoami", s.whoami)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// ledger
	get("/balance/{address}", s.balance)
	get("/bal/{address}", s.balance)
	get("/account/{address}", s.account)
	get("/history/{address}", s.history)
	get("/supply", s.supply)
	get("/blocks/recent", s.recentBlocks)
	get("/block", s.latestBlock)
	get("/block/{hash}", s.block)
	get("/transaction/{hash}", s.transaction)
	get("/search/{query}", s.search)

	// consensus and economics
	get("/validators", s.validators)
	get("/consensus", s.consensus)
	get("/reward-info", s.rewardInfo)
	get("/slashing", s.slashing)
	get("/slashing/{address}", s.slashingProfile)
	get("/fee-estimate/{address}", s.feeEstimate)
	get("/mempool/stats", s.mempoolStats)

	// transactions
	post("/send", s.send)
	post("/faucet", s.faucet)
	post("/burn", s.burn)
	post("/reset-burn-txid", s.resetBurn)
	post("/register-validator", s.registerValidator)
	post("/unregister-validator", s.unregisterValidator)

	// keys
	get("/validator/generate", s.generateKey)
	post("/validator/import-seed", s.importSeed)
	post("/validator/import", s.importKey)

	// peers
	get("/peers", s.peers)
	get("/network/peers", s.peers)
	get(network.SyncPath, s.sync)
	post(network.TxPath, s.p2pTx)
	post(network.ConsensusPath, s.p2pConsensus)
	post(network.HeartbeatPath, s.p2pHeartbeat)

	// contracts
	post("/deploy-contract", s.contractStub)
	post("/call-contract", s.contractStub)
	get("/contract/{id}", s.contractStub)

	return r
}

// rateLimit answers 429 to clients over their request budget.
func (s *service) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if wait, ok := s.limiter.Allow(client, r.URL.Path); !ok {
			secs := int64((wait + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			s.fail(w, r, fmt.Errorf("%w: try again in %d seconds", ratelimit.ErrRateLimited, secs))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *service) ok(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func (s *service) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError && code != http.StatusNotImplemented {
		s.log.Warn("request failed",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("code", code),
			log.Err(err),
		)
	} else {
		s.log.Debug("request rejected",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("code", code),
			log.Err(err),
		)
	}
	writeJSON(w, code, errorResponse{
		Status: statusError,
		Code:   code,
		Msg:    err.Error(),
	})
}

// decode reads a JSON body into v. Unknown fields are ignored so older
// clients keep working.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrMalformedBody)
		}
		return fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return nil
}

// readBody reads a raw peer message.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return b, nil
}

func (s *service) contractStub(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, ErrContractsUnsupported)
}
