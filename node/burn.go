// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"

	"github.com/luxfi/los/burn"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/txs"
)

// Burn mints LOS to recipient for a verified burn of coin in the foreign
// transaction txid.
func (n *Node) Burn(ctx context.Context, coinName, txid string, recipient keys.Address) (Receipt, *txs.Burn, error) {
	coin, err := burn.ParseCoin(coinName)
	if err != nil {
		return Receipt{}, nil, err
	}
	txid, err = burn.NormalizeTxID(txid)
	if err != nil {
		return Receipt{}, nil, err
	}
	if _, err := keys.ParseAddress(recipient.String()); err != nil {
		return Receipt{}, nil, err
	}
	if n.ledger.BurnClaimed(string(coin), txid) {
		return Receipt{}, nil, fmt.Errorf("%w: %s %s", ledger.ErrBurnAlreadyClaimed, coin, txid)
	}
	att, err := n.attest(ctx, coin, txid)
	if err != nil {
		return Receipt{}, nil, err
	}
	amount, usd, err := n.config.Burn.Pricing.Mint(att)
	if err != nil {
		return Receipt{}, nil, err
	}
	b := &txs.Burn{
		Coin:      string(coin),
		TxID:      txid,
		Recipient: recipient,
		Amount:    amount,
		USD:       usd,
	}
	receipt, err := n.Submit(ctx, &txs.Tx{
		Kind:      txs.KindBurn,
		Timestamp: n.clock.Time().UnixNano(),
		Burn:      b,
	})
	return receipt, b, err
}

// ResetBurn releases consumed burns on test networks so they can be
// claimed again. Without a coin every coin that consumed the txid is reset.
// Unknown burns are reported as not found.
func (n *Node) ResetBurn(ctx context.Context, coinName string, txids []string) (map[string]error, error) {
	if !n.config.Testnet {
		return nil, ErrTestnetOnly
	}
	coins := burn.Coins()
	if coinName != "" {
		coin, err := burn.ParseCoin(coinName)
		if err != nil {
			return nil, err
		}
		coins = []burn.Coin{coin}
	}
	results := make(map[string]error, len(txids))
	for _, raw := range txids {
		results[raw] = n.resetBurn(ctx, coins, raw)
	}
	return results, nil
}

func (n *Node) resetBurn(ctx context.Context, coins []burn.Coin, raw string) error {
	txid, err := burn.NormalizeTxID(raw)
	if err != nil {
		return err
	}
	found := false
	for _, coin := range coins {
		if !n.ledger.BurnClaimed(string(coin), txid) {
			continue
		}
		found = true
		_, err := n.Submit(ctx, &txs.Tx{
			Kind:      txs.KindResetBurn,
			Timestamp: n.clock.Time().UnixNano(),
			ResetBurn: &txs.ResetBurn{Coin: string(coin), TxID: txid},
		})
		if err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, txid)
	}
	return nil
}

// canonicalBurn checks that b names its coin and txid in canonical form. It
// only looks at b, so every replica agrees on the result.
func canonicalBurn(b *txs.Burn) (burn.Coin, string, error) {
	coin, err := burn.ParseCoin(b.Coin)
	if err != nil {
		return "", "", err
	}
	txid, err := burn.NormalizeTxID(b.TxID)
	if err != nil {
		return "", "", err
	}
	if string(coin) != b.Coin || txid != b.TxID {
		return "", "", fmt.Errorf("%w: %s %s is not canonical", burn.ErrInvalidTxID, b.Coin, b.TxID)
	}
	return coin, txid, nil
}

// checkBurn re-derives the minted amount of b from the oracle. It runs before
// a node admits or votes for a burn, never while executing a decision.
func (n *Node) checkBurn(b *txs.Burn) error {
	coin, txid, err := canonicalBurn(b)
	if err != nil {
		return err
	}
	if n.ledger.BurnClaimed(b.Coin, b.TxID) {
		return fmt.Errorf("%w: %s %s", ledger.ErrBurnAlreadyClaimed, b.Coin, b.TxID)
	}
	att, err := n.attest(context.Background(), coin, txid)
	if err != nil {
		return err
	}
	amount, usd, err := n.config.Burn.Pricing.Mint(att)
	if err != nil {
		return err
	}
	if amount != b.Amount || usd != b.USD {
		return fmt.Errorf("%w: attested %d CIL for %d micro-USD, claimed %d for %d",
			ErrAttestationChanged, amount, usd, b.Amount, b.USD)
	}
	return nil
}

// attest verifies a burn through the oracle. Attestations are cached since
// every validator checks the same burn more than once.
func (n *Node) attest(ctx context.Context, coin burn.Coin, txid string) (*burn.Attestation, error) {
	key := string(coin) + ":" + txid
	if v, ok := n.burnCache.Get(key); ok {
		return v.(*burn.Attestation), nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.config.Burn.VerifyTimeout)
	defer cancel()
	att, err := n.oracle.Verify(ctx, coin, txid)
	if err != nil {
		n.log.Debug("burn verification failed",
			log.String("coin", string(coin)),
			log.String("txid", txid),
			log.Err(err),
		)
		return nil, err
	}
	n.burnCache.Add(key, att)
	return att, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
