// Package venue declares the external collaborator contracts the arbitrage
// engine orchestrates: the flash lender, the swap routers of the two price
// venues, pair reserve readers, price feeds and the token ledger. The engine
// only ever talks to these interfaces; on-chain implementations live in
// venue/onchain, in-memory doubles live next to the engine tests.
package venue

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Router is one directed price venue: quote an output for a path and execute
// the swap. Factory identifies the pool registry the venue trades against.
type Router interface {
	QuoteOutput(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	Swap(ctx context.Context, amountIn, minOut *big.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*big.Int, error)
	Factory(ctx context.Context) (common.Address, error)
}

// Pair exposes the reserve state of one pool.
type Pair interface {
	Reserves(ctx context.Context) (reserve0, reserve1 *big.Int, updatedAt uint32, err error)
	Token0(ctx context.Context) (common.Address, error)
	Token1(ctx context.Context) (common.Address, error)
}

// PairSource resolves the pool for a token pair on one venue. ok is false
// when the venue has no pool for the pair; that is not an error.
type PairSource interface {
	Pair(ctx context.Context, tokenA, tokenB common.Address) (pair Pair, ok bool, err error)
}

// LoanReceiver is implemented by the engine. The lender invokes OnLoan
// exactly once per requested loan, with the funds already credited to the
// receiver, and treats a non-nil error as an instruction to discard every
// effect of the surrounding transaction.
type LoanReceiver interface {
	OnLoan(ctx context.Context, caller, initiator, asset common.Address, amount, premium *big.Int, params []byte) error
}

// Lender grants uncollateralized single-transaction loans. RequestLoan
// returns only after the receiver callback has completed and repayment
// (amount plus premium) has been collected; any failure along the way
// surfaces as an error and leaves no effects behind.
type Lender interface {
	RequestLoan(ctx context.Context, receiver common.Address, assets []common.Address, amounts []*big.Int, params []byte) error
}

// PriceOracle is an independent feed used to cross-check venue pricing.
// A nil or zero price means the feed is unavailable for that asset.
type PriceOracle interface {
	Price(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Tokens is the asset ledger: balances, allowances and transfers, keyed by
// asset identifier.
type Tokens interface {
	BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error)
	Approve(ctx context.Context, asset, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, asset, to common.Address, amount *big.Int) error
}

// GasPricer reports the current execution-cost price.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// CostMeter reports cumulative execution-cost units consumed by the process.
// The engine checkpoints it at trade start to attribute cost per trade.
type CostMeter interface {
	Consumed() uint64
}
