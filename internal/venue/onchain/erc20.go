package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
 {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// Tokens implements venue.Tokens over the ERC20 surface.
type Tokens struct {
	c   *Client
	abi abi.ABI
}

func NewTokens(c *Client) (*Tokens, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Tokens{c: c, abi: parsed}, nil
}

func (t *Tokens) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := t.c.call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	outs, err := t.abi.Methods["balanceOf"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode balanceOf")
	}
	return outs[0].(*big.Int), nil
}

func (t *Tokens) Approve(ctx context.Context, asset, spender common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	if _, err := t.c.send(ctx, asset, data); err != nil {
		return fmt.Errorf("approve tx: %w", err)
	}
	return nil
}

func (t *Tokens) Transfer(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}
	if _, err := t.c.send(ctx, asset, data); err != nil {
		return fmt.Errorf("transfer tx: %w", err)
	}
	return nil
}
