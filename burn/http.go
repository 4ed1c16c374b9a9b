// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package burn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"

	"github.com/luxfi/los/utils/retry"
)

const maxResponseBytes = 4 << 20

var _ Oracle = (*HTTPOracle)(nil)

// HTTPConfig points the oracle at public chain endpoints.
type HTTPConfig struct {
	// BTCExplorer is the base URL of an Esplora compatible API.
	BTCExplorer    string `json:"btcExplorer"`
	BTCBurnAddress string `json:"btcBurnAddress"`
	// ETHRPC is an Ethereum JSON-RPC endpoint.
	ETHRPC         string `json:"ethRPC"`
	ETHBurnAddress string `json:"ethBurnAddress"`
	// Prices in micro-USD per whole coin.
	Prices map[Coin]uint64 `json:"prices"`
}

// HTTPOracle verifies burns against block explorers.
type HTTPOracle struct {
	log    log.Logger
	config HTTPConfig
	client *http.Client
	retry  retry.Config
}

func NewHTTPOracle(config HTTPConfig, client *http.Client, logger log.Logger) *HTTPOracle {
	return &HTTPOracle{
		log:    logger,
		config: config,
		client: client,
		retry:  retry.DefaultConfig,
	}
}

func (o *HTTPOracle) Verify(ctx context.Context, coin Coin, txid string) (*Attestation, error) {
	id, err := NormalizeTxID(txid)
	if err != nil {
		return nil, err
	}
	price, ok := o.config.Prices[coin]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, coin)
	}

	var amount *uint256.Int
	err = retry.Do(ctx, o.retry, func(ctx context.Context) error {
		var err error
		switch coin {
		case BTC:
			amount, err = o.verifyBTC(ctx, id)
		case ETH:
			amount, err = o.verifyETH(ctx, id)
		default:
			return retry.Permanent(fmt.Errorf("%w: %q", ErrUnsupportedCoin, coin))
		}
		return err
	})
	if err != nil {
		o.log.Debug("burn verification failed",
			log.String("coin", string(coin)),
			log.String("txid", id),
			log.Err(err),
		)
		return nil, err
	}
	return &Attestation{Coin: coin, TxID: id, Amount: amount, Price: price}, nil
}

type esploraTx struct {
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
	Vout []struct {
		Address string `json:"scriptpubkey_address"`
		Value   uint64 `json:"value"`
	} `json:"vout"`
}

func (o *HTTPOracle) verifyBTC(ctx context.Context, txid string) (*uint256.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(o.config.BTCExplorer, "/")+"/tx/"+txid, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	var tx esploraTx
	if err := o.do(req, &tx); err != nil {
		return nil, err
	}
	if !tx.Status.Confirmed {
		return nil, retry.Permanent(ErrUnconfirmed)
	}
	burned := new(uint256.Int)
	for _, out := range tx.Vout {
		if out.Address == o.config.BTCBurnAddress {
			burned.Add(burned, uint256.NewInt(out.Value))
		}
	}
	if burned.IsZero() {
		return nil, retry.Permanent(ErrNotBurned)
	}
	return burned, nil
}

type rpcResponse struct {
	Result *struct {
		To          string  `json:"to"`
		Value       string  `json:"value"`
		BlockNumber *string `json:"blockNumber"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *HTTPOracle) verifyETH(ctx context.Context, txid string) (*uint256.Int, error) {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_getTransactionByHash",
		"params":  []string{"0x" + txid},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.ETHRPC, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp rpcResponse
	if err := o.do(req, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.Error != nil:
		return nil, fmt.Errorf("eth rpc: %s", resp.Error.Message)
	case resp.Result == nil:
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrTxNotFound, txid))
	case resp.Result.BlockNumber == nil:
		return nil, retry.Permanent(ErrUnconfirmed)
	case !strings.EqualFold(resp.Result.To, o.config.ETHBurnAddress):
		return nil, retry.Permanent(ErrNotBurned)
	}
	value, err := uint256.FromHex(resp.Result.Value)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("bad value %q: %w", resp.Result.Value, err))
	}
	if value.IsZero() {
		return nil, retry.Permanent(ErrNotBurned)
	}
	return value, nil
}

func (o *HTTPOracle) do(req *http.Request, out any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrTxNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("explorer returned %s", resp.Status)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("explorer returned %s", resp.Status))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return retry.Permanent(err)
	}
	return nil
}
