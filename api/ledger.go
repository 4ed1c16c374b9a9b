// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/utils/units"

	ljson "github.com/luxfi/los/utils/json"
)

const (
	defaultLimit = 20
	maxLimit     = 200

	// accountHistory is the number of blocks embedded in GET /account.
	accountHistory = 50
)

// blockJSON is the public rendering of a ledger block. From and To resolve
// the counterparty so a client does not need to know the block type.
// Amounts are in CIL.
type blockJSON struct {
	Hash      ids.ID           `json:"hash"`
	Account   keys.Address     `json:"account"`
	Previous  ids.ID           `json:"previous"`
	Height    uint64           `json:"height"`
	Type      ledger.BlockType `json:"type"`
	From      keys.Address     `json:"from"`
	To        keys.Address     `json:"to"`
	Amount    uint64           `json:"amount"`
	AmountLOS ljson.LOS        `json:"amount_los"`
	Fee       uint64           `json:"fee"`
	Balance   uint64           `json:"balance"`
	Link      ids.ID           `json:"link"`
	TxID      ids.ID           `json:"tx_id"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

func newBlockJSON(b *ledger.Block) blockJSON {
	out := blockJSON{
		Hash:      b.Hash,
		Account:   b.Account,
		Previous:  b.Previous,
		Height:    b.Height,
		Type:      b.Type,
		Amount:    b.Amount,
		AmountLOS: ljson.LOS(b.Amount),
		Fee:       b.Fee,
		Balance:   b.Balance,
		Link:      b.Link,
		TxID:      b.TxID,
		Reason:    b.Reason,
		Timestamp: b.Timestamp,
	}
	switch b.Type {
	case ledger.Send:
		out.From, out.To = b.Account, b.Counterparty
	case ledger.Receive:
		out.From, out.To = b.Counterparty, b.Account
	case ledger.Slash:
		out.From = b.Account
	default:
		out.To = b.Account
	}
	return out
}

func newBlocksJSON(blocks []*ledger.Block) []blockJSON {
	out := make([]blockJSON, len(blocks))
	for i, b := range blocks {
		out[i] = newBlockJSON(b)
	}
	return out
}

func pathAddress(r *http.Request) (keys.Address, error) {
	return keys.ParseAddress(mux.Vars(r)["address"])
}

func pathID(r *http.Request, name string) (ids.ID, error) {
	raw := mux.Vars(r)[name]
	id, err := ids.FromString(raw)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: %q", ledger.ErrNotFound, raw)
	}
	return id, nil
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

type balanceResponse struct {
	result
	Address    keys.Address `json:"address"`
	BalanceCIL uint64       `json:"balance_cil"`
	BalanceLOS ljson.LOS    `json:"balance_los"`
	// Balance is the whole LOS part, kept for older clients.
	Balance uint64 `json:"balance"`
}

func (s *service) balance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bal := s.node.Ledger().Balance(addr)
	s.ok(w, balanceResponse{
		result:     success,
		Address:    addr,
		BalanceCIL: bal,
		BalanceLOS: ljson.LOS(bal),
		Balance:    units.WholeLOS(bal),
	})
}

type accountResponse struct {
	result
	Address          keys.Address `json:"address"`
	BalanceCIL       uint64       `json:"balance_cil"`
	BalanceLOS       ljson.LOS    `json:"balance_los"`
	BlockCount       uint64       `json:"block_count"`
	HeadBlock        ids.ID       `json:"head_block"`
	IsValidator      bool         `json:"is_validator"`
	Transactions     []blockJSON  `json:"transactions"`
	TransactionCount int          `json:"transaction_count"`
}

func (s *service) account(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := accountResponse{
		result:       success,
		Address:      addr,
		Transactions: []blockJSON{},
	}
	acc, ok := s.node.Ledger().Account(addr)
	if !ok {
		s.ok(w, resp)
		return
	}
	history, err := s.node.Ledger().History(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.BalanceCIL = acc.Balance
	resp.BalanceLOS = ljson.LOS(acc.Balance)
	resp.BlockCount = acc.BlockCount
	resp.HeadBlock = acc.Head
	resp.IsValidator = acc.IsValidator()
	resp.TransactionCount = len(history)
	if len(history) > accountHistory {
		history = history[len(history)-accountHistory:]
	}
	resp.Transactions = newBlocksJSON(history)
	s.ok(w, resp)
}

type historyResponse struct {
	result
	Address      keys.Address `json:"address"`
	Transactions []blockJSON  `json:"transactions"`
	Count        int          `json:"count"`
}

// history returns the full chain of an address, oldest first, so replaying
// it reproduces the balance.
func (s *service) history(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := s.node.Ledger().History(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, historyResponse{
		result:       success,
		Address:      addr,
		Transactions: newBlocksJSON(history),
		Count:        len(history),
	})
}

type supplyResponse struct {
	result
	TotalSupply          ljson.LOS `json:"total_supply"`
	TotalSupplyCIL       uint64    `json:"total_supply_cil"`
	CirculatingSupply    ljson.LOS `json:"circulating_supply"`
	CirculatingSupplyCIL uint64    `json:"circulating_supply_cil"`
	RemainingSupply      ljson.LOS `json:"remaining_supply"`
	RemainingSupplyCIL   uint64    `json:"remaining_supply_cil"`
	RewardReserveCIL     uint64    `json:"reward_reserve_cil"`
	TotalBurnedUSD       string    `json:"total_burned_usd"`
	TotalBurnedMicroUSD  uint64    `json:"total_burned_micro_usd"`
}

func (s *service) supply(w http.ResponseWriter, _ *http.Request) {
	sup := s.node.Ledger().Supply()
	s.ok(w, supplyResponse{
		result:               success,
		TotalSupply:          ljson.LOS(sup.Total),
		TotalSupplyCIL:       sup.Total,
		CirculatingSupply:    ljson.LOS(sup.Circulating),
		CirculatingSupplyCIL: sup.Circulating,
		RemainingSupply:      ljson.LOS(sup.Remaining),
		RemainingSupplyCIL:   sup.Remaining,
		RewardReserveCIL:     sup.RewardReserve,
		TotalBurnedUSD:       formatUSD(sup.BurnedUSD),
		TotalBurnedMicroUSD:  sup.BurnedUSD,
	})
}

// formatUSD renders micro-dollars as an exact decimal string.
func formatUSD(micro uint64) string {
	return fmt.Sprintf("%d.%06d", micro/1_000_000, micro%1_000_000)
}

type blocksResponse struct {
	result
	Blocks []blockJSON `json:"blocks"`
	Count  int         `json:"count"`
}

func (s *service) recentBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.node.Ledger().RecentBlocks(queryLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, blocksResponse{
		result: success,
		Blocks: newBlocksJSON(blocks),
		Count:  len(blocks),
	})
}

type blockResponse struct {
	result
	Block blockJSON `json:"block"`
}

func (s *service) latestBlock(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.node.Ledger().RecentBlocks(1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(blocks) == 0 {
		s.fail(w, r, fmt.Errorf("%w: ledger is empty", ledger.ErrNotFound))
		return
	}
	s.ok(w, blockResponse{
		result: success,
		Block:  newBlockJSON(blocks[0]),
	})
}

func (s *service) block(w http.ResponseWriter, r *http.Request) {
	hash, err := pathID(r, "hash")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.node.Ledger().Block(hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, blockResponse{
		result: success,
		Block:  newBlockJSON(b),
	})
}

type transactionJSON struct {
	Hash      ids.ID           `json:"hash"`
	Block     ids.ID           `json:"block,omitempty"`
	Type      ledger.BlockType `json:"type,omitempty"`
	From      keys.Address     `json:"from,omitempty"`
	To        keys.Address     `json:"to,omitempty"`
	Amount    uint64           `json:"amount"`
	AmountLOS ljson.LOS        `json:"amount_los"`
	Fee       uint64           `json:"fee"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Confirmed bool             `json:"confirmed"`
}

type transactionResponse struct {
	result
	Transaction transactionJSON `json:"transaction"`
}

// transaction resolves hash as a transaction ID first and then as a block
// hash. Transactions still waiting in the mempool are reported unconfirmed.
func (s *service) transaction(w http.ResponseWriter, r *http.Request) {
	hash, err := pathID(r, "hash")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.lookupTransaction(hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, transactionResponse{
		result:      success,
		Transaction: tx,
	})
}

func (s *service) lookupTransaction(hash ids.ID) (transactionJSON, error) {
	l := s.node.Ledger()
	b, err := l.BlockByTx(hash)
	if err != nil {
		b, err = l.Block(hash)
	}
	if err != nil {
		if s.node.Mempool().Has(hash) {
			return transactionJSON{Hash: hash}, nil
		}
		return transactionJSON{}, err
	}
	view := newBlockJSON(b)
	return transactionJSON{
		Hash:      b.TxID,
		Block:     b.Hash,
		Type:      b.Type,
		From:      view.From,
		To:        view.To,
		Amount:    b.Amount,
		AmountLOS: ljson.LOS(b.Amount),
		Fee:       b.Fee,
		Timestamp: b.Timestamp,
		Confirmed: true,
	}, nil
}

type searchResponse struct {
	result
	Type        string           `json:"type"`
	Query       string           `json:"query"`
	Address     *balanceResponse `json:"address,omitempty"`
	Block       *blockJSON       `json:"block,omitempty"`
	Transaction *transactionJSON `json:"transaction,omitempty"`
}

func (s *service) search(w http.ResponseWriter, r *http.Request) {
	query := mux.Vars(r)["query"]
	resp := searchResponse{
		result: success,
		Query:  query,
	}
	if addr, err := keys.ParseAddress(query); err == nil {
		bal := s.node.Ledger().Balance(addr)
		resp.Type = "address"
		resp.Address = &balanceResponse{
			result:     success,
			Address:    addr,
			BalanceCIL: bal,
			BalanceLOS: ljson.LOS(bal),
			Balance:    units.WholeLOS(bal),
		}
		s.ok(w, resp)
		return
	}
	id, err := ids.FromString(query)
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %q is neither an address nor a hash", ledger.ErrNotFound, query))
		return
	}
	if b, err := s.node.Ledger().Block(id); err == nil {
		view := newBlockJSON(b)
		resp.Type = "block"
		resp.Block = &view
		s.ok(w, resp)
		return
	}
	tx, err := s.lookupTransaction(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.Type = "transaction"
	resp.Transaction = &tx
	s.ok(w, resp)
}
