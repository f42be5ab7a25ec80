package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"factory","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// Router is a UniswapV2-style venue router. Swap simulates the call first to
// obtain the amounts vector, then submits the real transaction.
type Router struct {
	c    *Client
	abi  abi.ABI
	addr common.Address
	log  *zap.Logger
}

func NewRouter(c *Client, addr common.Address, log *zap.Logger) (*Router, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	return &Router{c: c, abi: parsed, addr: addr, log: log}, nil
}

// Address is the identity swaps must be approved to.
func (r *Router) Address() common.Address { return r.addr }

func (r *Router) QuoteOutput(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := r.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := r.c.call(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call getAmountsOut: %w", err)
	}
	return r.unpackAmounts("getAmountsOut", raw)
}

func (r *Router) Swap(ctx context.Context, amountIn, minOut *big.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*big.Int, error) {
	data, err := r.abi.Pack("swapExactTokensForTokens", amountIn, minOut, path, recipient, big.NewInt(deadline.Unix()))
	if err != nil {
		return nil, fmt.Errorf("pack swap: %w", err)
	}

	// simulate first: the amounts vector is only observable via eth_call
	raw, err := r.c.call(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("simulate swap: %w", err)
	}
	amounts, err := r.unpackAmounts("swapExactTokensForTokens", raw)
	if err != nil {
		return nil, err
	}

	hash, err := r.c.send(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("swap tx: %w", err)
	}
	r.log.Debug("swap mined", zap.String("tx", hash.Hex()), zap.String("router", r.addr.Hex()))
	return amounts, nil
}

func (r *Router) Factory(ctx context.Context) (common.Address, error) {
	data, _ := r.abi.Pack("factory")
	raw, err := r.c.call(ctx, r.addr, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("call factory: %w", err)
	}
	outs, err := r.abi.Methods["factory"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return common.Address{}, errors.New("decode factory")
	}
	return outs[0].(common.Address), nil
}

func (r *Router) unpackAmounts(method string, raw []byte) ([]*big.Int, error) {
	outs, err := r.abi.Methods[method].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("decode %s", method)
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("decode %s: bad amounts", method)
	}
	return amounts, nil
}
