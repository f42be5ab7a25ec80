package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallABI = `[
{
    "constant": false,
    "inputs": [
        {
            "components": [
                {"name": "target", "type": "address"},
                {"name": "callData", "type": "bytes"}
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "aggregate",
    "outputs": [
        {"name": "blockNumber", "type": "uint256"},
        {"name": "returnData", "type": "bytes[]"}
    ],
    "payable": false,
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

// Multicall batches read calls through a deployed aggregator so a pair's
// token ordering and reserves arrive in one round trip.
type Multicall struct {
	c    *Client
	addr common.Address
	abi  abi.ABI
}

type mcCall struct {
	Target   common.Address
	CallData []byte
}

func NewMulticall(c *Client, addr common.Address) (*Multicall, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	return &Multicall{c: c, addr: addr, abi: parsed}, nil
}

func (m *Multicall) Aggregate(ctx context.Context, calls []mcCall) ([][]byte, error) {
	payload, err := m.abi.Pack("aggregate", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}
	raw, err := m.c.call(ctx, m.addr, payload)
	if err != nil {
		return nil, fmt.Errorf("call aggregate: %w", err)
	}

	var out struct {
		BlockNumber *big.Int
		ReturnData  [][]byte
	}
	if err := m.abi.UnpackIntoInterface(&out, "aggregate", raw); err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(out.ReturnData) != len(calls) {
		return nil, fmt.Errorf("aggregate: %d results for %d calls", len(out.ReturnData), len(calls))
	}
	return out.ReturnData, nil
}
