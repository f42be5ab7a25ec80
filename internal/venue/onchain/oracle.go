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

const aggregatorABI = `[
 {"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

// Oracle reads Chainlink-style aggregator feeds, one per asset. Assets
// without a configured feed report as unavailable, which the engine treats
// as a silent skip.
type Oracle struct {
	c     *Client
	abi   abi.ABI
	feeds map[common.Address]common.Address
}

func NewOracle(c *Client, feeds map[common.Address]common.Address) (*Oracle, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	return &Oracle{c: c, abi: parsed, feeds: feeds}, nil
}

func (o *Oracle) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	feed, ok := o.feeds[asset]
	if !ok {
		return nil, nil // no feed configured: unavailable, not an error
	}
	data, _ := o.abi.Pack("latestRoundData")
	raw, err := o.c.call(ctx, feed, data)
	if err != nil {
		return nil, fmt.Errorf("call latestRoundData: %w", err)
	}
	outs, err := o.abi.Methods["latestRoundData"].Outputs.Unpack(raw)
	if err != nil || len(outs) < 2 {
		return nil, errors.New("decode latestRoundData")
	}
	answer := outs[1].(*big.Int)
	if answer.Sign() <= 0 {
		return nil, nil
	}
	return answer, nil
}
