package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const poolABI = `[
 {"inputs":[{"internalType":"address","name":"receiverAddress","type":"address"},{"internalType":"address[]","name":"assets","type":"address[]"},{"internalType":"uint256[]","name":"amounts","type":"uint256[]"},{"internalType":"uint256[]","name":"interestRateModes","type":"uint256[]"},{"internalType":"address","name":"onBehalfOf","type":"address"},{"internalType":"bytes","name":"params","type":"bytes"},{"internalType":"uint16","name":"referralCode","type":"uint16"}],"name":"flashLoan","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Lender submits the flash-loan transaction to an Aave-style pool. The
// chain invokes the deployed receiver contract's callback and enforces the
// all-or-nothing boundary; a reverted receipt is the rollback signal.
type Lender struct {
	c    *Client
	abi  abi.ABI
	pool common.Address
	log  *zap.Logger
}

func NewLender(c *Client, pool common.Address, log *zap.Logger) (*Lender, error) {
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Lender{c: c, abi: parsed, pool: pool, log: log}, nil
}

func (l *Lender) RequestLoan(ctx context.Context, receiver common.Address, assets []common.Address, amounts []*big.Int, params []byte) error {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return errors.New("assets/amounts length mismatch")
	}
	modes := make([]*big.Int, len(assets)) // all zero: full repayment, no debt
	for i := range modes {
		modes[i] = big.NewInt(0)
	}
	data, err := l.abi.Pack("flashLoan", receiver, assets, amounts, modes, receiver, params, uint16(0))
	if err != nil {
		return fmt.Errorf("pack flashLoan: %w", err)
	}
	hash, err := l.c.send(ctx, l.pool, data)
	if err != nil {
		return fmt.Errorf("flashLoan tx: %w", err)
	}
	l.log.Info("flash loan mined", zap.String("tx", hash.Hex()))
	return nil
}
