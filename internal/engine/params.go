package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Trade parameters travel opaquely through the lender's callback payload,
// ABI-encoded as (address borrowAsset, uint256 amount, address targetAsset,
// uint256 expectedProfit).

var tradeParamsArgs = func() abi.Arguments {
	addr, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "borrowAsset", Type: addr},
		{Name: "amount", Type: uint256},
		{Name: "targetAsset", Type: addr},
		{Name: "expectedProfit", Type: uint256},
	}
}()

type tradeParams struct {
	BorrowAsset    common.Address
	Amount         *big.Int
	TargetAsset    common.Address
	ExpectedProfit *big.Int
}

func encodeTradeParams(p tradeParams) ([]byte, error) {
	return tradeParamsArgs.Pack(p.BorrowAsset, p.Amount, p.TargetAsset, p.ExpectedProfit)
}

func decodeTradeParams(data []byte) (tradeParams, error) {
	vals, err := tradeParamsArgs.Unpack(data)
	if err != nil {
		return tradeParams{}, fmt.Errorf("decode trade params: %w", err)
	}
	if len(vals) != 4 {
		return tradeParams{}, fmt.Errorf("decode trade params: got %d values", len(vals))
	}
	return tradeParams{
		BorrowAsset:    vals[0].(common.Address),
		Amount:         vals[1].(*big.Int),
		TargetAsset:    vals[2].(common.Address),
		ExpectedProfit: vals[3].(*big.Int),
	}, nil
}
