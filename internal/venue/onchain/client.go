// Package onchain implements the venue collaborator contracts against real
// chain state: UniswapV2-style routers and pairs, an Aave-style flash
// lender, Chainlink-style price feeds and the ERC20 ledger, all through
// ethclient with minimal hand-rolled ABIs.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client bundles the RPC connection, the signing key and gas accounting
// shared by every on-chain adapter.
type Client struct {
	ec       *ethclient.Client
	priv     *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	gasUsed  atomic.Uint64
	log      *zap.Logger
}

func Dial(ctx context.Context, rpcURL, pkHex string, gasLimit uint64, log *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = 1_200_000
	}
	c := &Client{ec: ec, gasLimit: gasLimit, log: log}

	if strings.TrimSpace(pkHex) != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad private key: %w", err)
		}
		c.priv = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
		c.chainID, err = ec.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}
	return c, nil
}

// Sender is the signing identity; the engine uses it as its own address.
func (c *Client) Sender() common.Address { return c.from }

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ec.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
}

// send signs and submits a transaction, waits for inclusion and records the
// consumed gas. A reverted receipt surfaces as an error.
func (c *Client) send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.priv == nil {
		return common.Hash{}, errors.New("no private key configured")
	}

	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(2_000_000_000)
	}
	var baseFee *big.Int
	if h, _ := c.ec.HeaderByNumber(ctx, nil); h != nil && h.BaseFee != nil {
		baseFee = h.BaseFee
	} else if sp, _ := c.ec.SuggestGasPrice(ctx); sp != nil {
		baseFee = sp
	} else {
		baseFee = big.NewInt(5_000_000_000)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gas, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil || gas == 0 {
		gas = c.gasLimit
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
		Value:     big.NewInt(0),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.priv)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	rcpt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return signed.Hash(), err
	}
	c.gasUsed.Add(rcpt.GasUsed)
	if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
		return signed.Hash(), fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	return signed.Hash(), nil
}

func (c *Client) waitMined(ctx context.Context, h common.Hash) (*gethtypes.Receipt, error) {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		rcpt, err := c.ec.TransactionReceipt(ctx, h)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}

// GasPrice implements venue.GasPricer.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.ec.SuggestGasPrice(ctx)
}

// Consumed implements venue.CostMeter: cumulative gas units of every
// transaction this client has mined.
func (c *Client) Consumed() uint64 { return c.gasUsed.Load() }
