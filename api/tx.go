// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/txs"

	ljson "github.com/luxfi/los/utils/json"
)

const statusPending = "pending"

// receiptResult reports a confirmed submission as a success and one still
// waiting for finality as pending with 202 Accepted.
func receiptResult(r node.Receipt) (result, int) {
	if r.Confirmed {
		return success, http.StatusOK
	}
	return result{Status: statusPending}, http.StatusAccepted
}

type sendRequest struct {
	From keys.Address `json:"from"`
	// Target is accepted as an alias of To.
	Target    keys.Address `json:"target"`
	To        keys.Address `json:"to"`
	Amount    ljson.LOS    `json:"amount"`
	AmountCIL ljson.Uint64 `json:"amount_cil"`
	// FeeCIL is the signed fee, taken from /fee-estimate.
	FeeCIL    ljson.Uint64 `json:"fee_cil"`
	Nonce     int64        `json:"nonce"`
	Signature string       `json:"signature"`
	PublicKey string       `json:"public_key"`
}

type sendResponse struct {
	result
	TxHash        ids.ID       `json:"tx_hash"`
	From          keys.Address `json:"from"`
	To            keys.Address `json:"to"`
	AmountCIL     uint64       `json:"amount_cil"`
	Amount        ljson.LOS    `json:"amount"`
	FeeCIL        uint64       `json:"fee_paid_cil"`
	FeeMultiplier uint64       `json:"fee_multiplier"`
	Confirmed     bool         `json:"confirmed"`
}

// send submits a transfer. Unsigned requests are signed by the node, which
// only ever spends from its own account.
func (s *service) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.transfer(&req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.node.Send(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, code := receiptResult(receipt)
	var multiplier uint64
	if base := s.node.Config().Fee.BaseFee; base > 0 {
		multiplier = t.Fee / base
	}
	writeJSON(w, code, sendResponse{
		result:        res,
		TxHash:        receipt.TxID,
		From:          t.From,
		To:            t.To,
		AmountCIL:     t.Amount,
		Amount:        ljson.LOS(t.Amount),
		FeeCIL:        t.Fee,
		FeeMultiplier: multiplier,
		Confirmed:     receipt.Confirmed,
	})
}

func (s *service) transfer(req *sendRequest) (*txs.Transfer, error) {
	to := req.To
	if to == "" {
		to = req.Target
	}
	if to == "" {
		return nil, fmt.Errorf("%w: to", ErrMissingField)
	}
	amount := uint64(req.AmountCIL)
	if amount == 0 {
		amount = uint64(req.Amount)
	}

	if req.Signature == "" {
		self := s.node.Address()
		if req.From != "" && req.From != self {
			if _, err := keys.ParseAddress(req.From.String()); err != nil {
				return nil, err
			}
			return nil, ErrSignatureRequired
		}
		nonce := req.Nonce
		if nonce == 0 {
			nonce = s.node.Clock().Time().UnixNano()
		}
		return s.node.SignTransfer(to, amount, nonce), nil
	}

	if req.From == "" {
		return nil, fmt.Errorf("%w: from", ErrMissingField)
	}
	if req.FeeCIL == 0 {
		return nil, fmt.Errorf("%w: fee_cil", ErrMissingField)
	}
	pk, err := keys.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		return nil, err
	}
	sig, err := keys.ParseSignatureHex(req.Signature)
	if err != nil {
		return nil, err
	}
	return &txs.Transfer{
		From:      req.From,
		To:        to,
		Amount:    amount,
		Fee:       uint64(req.FeeCIL),
		Nonce:     req.Nonce,
		PublicKey: pk,
		Signature: sig,
	}, nil
}

type faucetRequest struct {
	Address keys.Address `json:"address"`
}

type faucetResponse struct {
	result
	TxHash        ids.ID       `json:"tx_hash"`
	Address       keys.Address `json:"address"`
	Amount        ljson.LOS    `json:"amount"`
	AmountCIL     uint64       `json:"amount_cil"`
	NewBalance    ljson.LOS    `json:"new_balance"`
	NewBalanceCIL uint64       `json:"new_balance_cil"`
	Confirmed     bool         `json:"confirmed"`
}

func (s *service) faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, amount, err := s.node.Faucet(r.Context(), req.Address)
	if err != nil {
		if errors.Is(err, node.ErrFaucetCooldown) {
			if left, cerr := s.node.FaucetCooldown(req.Address); cerr == nil && left > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(left, 10))
			}
		}
		s.fail(w, r, err)
		return
	}
	res, code := receiptResult(receipt)
	bal := s.node.Ledger().Balance(req.Address)
	writeJSON(w, code, faucetResponse{
		result:        res,
		TxHash:        receipt.TxID,
		Address:       req.Address,
		Amount:        ljson.LOS(amount),
		AmountCIL:     amount,
		NewBalance:    ljson.LOS(bal),
		NewBalanceCIL: bal,
		Confirmed:     receipt.Confirmed,
	})
}

type burnRequest struct {
	CoinType  string       `json:"coin_type"`
	TxID      string       `json:"txid"`
	Recipient keys.Address `json:"recipient_address"`
	// Amount is informational; the minted amount always comes from the
	// attested burn.
	Amount json.RawMessage `json:"amount"`
}

type burnResponse struct {
	result
	TxHash    ids.ID       `json:"tx_hash"`
	Coin      string       `json:"coin"`
	TxID      string       `json:"txid"`
	Recipient keys.Address `json:"recipient"`
	MintedCIL uint64       `json:"minted_cil"`
	MintedLOS ljson.LOS    `json:"minted_los"`
	USDValue  string       `json:"usd_value"`
	Confirmed bool         `json:"confirmed"`
}

// burn mints against a foreign burn. The recipient defaults to the node's
// own address.
func (s *service) burn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.CoinType == "" || req.TxID == "" {
		s.fail(w, r, fmt.Errorf("%w: coin_type and txid", ErrMissingField))
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = s.node.Address()
	}
	receipt, b, err := s.node.Burn(r.Context(), req.CoinType, req.TxID, recipient)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, code := receiptResult(receipt)
	writeJSON(w, code, burnResponse{
		result:    res,
		TxHash:    receipt.TxID,
		Coin:      b.Coin,
		TxID:      b.TxID,
		Recipient: b.Recipient,
		MintedCIL: b.Amount,
		MintedLOS: ljson.LOS(b.Amount),
		USDValue:  formatUSD(b.USD),
		Confirmed: receipt.Confirmed,
	})
}

type resetBurnRequest struct {
	CoinType string   `json:"coin_type"`
	TxID     string   `json:"txid"`
	TxIDs    []string `json:"txids"`
}

type resetBurnResult struct {
	TxID  string `json:"txid"`
	Reset bool   `json:"reset"`
	Error string `json:"error,omitempty"`
}

type resetBurnResponse struct {
	result
	Results []resetBurnResult `json:"results"`
	Reset   int               `json:"reset"`
}

func (s *service) resetBurn(w http.ResponseWriter, r *http.Request) {
	var req resetBurnRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	txids := req.TxIDs
	if req.TxID != "" {
		txids = append(txids, req.TxID)
	}
	if len(txids) == 0 {
		s.fail(w, r, fmt.Errorf("%w: txid", ErrMissingField))
		return
	}
	results, err := s.node.ResetBurn(r.Context(), req.CoinType, txids)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := resetBurnResponse{
		result:  success,
		Results: make([]resetBurnResult, 0, len(txids)),
	}
	var firstErr error
	for _, txid := range txids {
		err := results[txid]
		res := resetBurnResult{
			TxID:  txid,
			Reset: err == nil,
		}
		if err != nil {
			res.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			resp.Reset++
		}
		resp.Results = append(resp.Results, res)
	}
	if resp.Reset == 0 {
		s.fail(w, r, firstErr)
		return
	}
	s.ok(w, resp)
}

type registerRequest struct {
	Address   keys.Address `json:"address"`
	PublicKey string       `json:"public_key"`
	Signature string       `json:"signature"`
	Timestamp int64        `json:"timestamp"`
}

type validatorResponse struct {
	result
	TxHash    ids.ID       `json:"tx_hash"`
	Address   keys.Address `json:"address"`
	Confirmed bool         `json:"confirmed"`
}

// registerValidator checks the signature over
// REGISTER_VALIDATOR:<address>:<timestamp> before anything is submitted.
func (s *service) registerValidator(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := keys.ParseAddress(req.Address.String()); err != nil {
		s.fail(w, r, err)
		return
	}
	pk, err := keys.ParsePublicKeyHex(req.PublicKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sig, err := keys.ParseSignatureHex(req.Signature)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.node.Register(r.Context(), &txs.RegisterValidator{
		Address:   req.Address,
		PublicKey: pk,
		Signature: sig,
		Timestamp: req.Timestamp,
	})
	s.writeValidator(w, r, req.Address, receipt, err)
}

type unregisterRequest struct {
	Address   keys.Address `json:"address"`
	PublicKey string       `json:"public_key"`
	Signature string       `json:"signature"`
}

// unregisterValidator accepts a request without public_key by using the key
// the validator registered with.
func (s *service) unregisterValidator(w http.ResponseWriter, r *http.Request) {
	var req unregisterRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := keys.ParseAddress(req.Address.String()); err != nil {
		s.fail(w, r, err)
		return
	}
	sig, err := keys.ParseSignatureHex(req.Signature)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var pk []byte
	if req.PublicKey != "" {
		pk, err = keys.ParsePublicKeyHex(req.PublicKey)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else if acc, ok := s.node.Ledger().Account(req.Address); ok && acc.IsValidator() {
		pk = acc.Validator.PublicKey
	}
	receipt, err := s.node.Unregister(r.Context(), &txs.UnregisterValidator{
		Address:   req.Address,
		PublicKey: pk,
		Signature: sig,
	})
	s.writeValidator(w, r, req.Address, receipt, err)
}

func (s *service) writeValidator(w http.ResponseWriter, r *http.Request, addr keys.Address, receipt node.Receipt, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, code := receiptResult(receipt)
	writeJSON(w, code, validatorResponse{
		result:    res,
		TxHash:    receipt.TxID,
		Address:   addr,
		Confirmed: receipt.Confirmed,
	})
}
