package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// tradeResult is the outcome of the guarded arbitrage attempt: either a
// verified positive profit, or a failure with a diagnostic. A failure never
// aborts the callback by itself; repayment accounting still runs.
type tradeResult struct {
	ok     bool
	profit *big.Int
	reason string
}

// runGuarded runs the two-leg strategy behind a recover boundary so that
// any failure, known or unknown, collapses into a failed-trade outcome.
func (e *Engine) runGuarded(ctx context.Context, borrowAsset, targetAsset common.Address, loanAmount, premium *big.Int) (res tradeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = tradeResult{profit: new(big.Int), reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	profit, err := e.runTwoLegArbitrage(ctx, borrowAsset, targetAsset, loanAmount, premium)
	if err != nil {
		return tradeResult{profit: new(big.Int), reason: err.Error()}
	}
	return tradeResult{ok: true, profit: profit}
}

// runTwoLegArbitrage buys the target asset on venue A, sells the entire
// proceeds back on venue B and nets the result against the loan premium.
// profit = finalBalance - initialBalance - premium; anything non-positive is
// an insufficient-profit failure.
func (e *Engine) runTwoLegArbitrage(ctx context.Context, borrowAsset, targetAsset common.Address, loanAmount, premium *big.Int) (*big.Int, error) {
	if err := e.checkLiquidity(ctx, borrowAsset, targetAsset, loanAmount); err != nil {
		return nil, err
	}
	slip := e.estimateSlippage(ctx, borrowAsset, targetAsset, loanAmount)

	initial, err := e.tokens.BalanceOf(ctx, borrowAsset, e.self)
	if err != nil {
		return nil, fmt.Errorf("read initial balance: %w", err)
	}

	bought, err := e.executeSwap(ctx, e.venueA, borrowAsset, targetAsset, loanAmount, slip)
	if err != nil {
		return nil, err
	}
	if _, err := e.executeSwap(ctx, e.venueB, targetAsset, borrowAsset, bought, slip); err != nil {
		return nil, err
	}

	final, err := e.tokens.BalanceOf(ctx, borrowAsset, e.self)
	if err != nil {
		return nil, fmt.Errorf("read final balance: %w", err)
	}

	profit := new(big.Int).Sub(final, initial)
	profit.Sub(profit, premium)
	if profit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: net %s after premium %s", ErrInsufficientProfit, profit, premium)
	}

	e.log.Debug("two-leg arbitrage complete",
		zap.String("borrow", borrowAsset.Hex()),
		zap.String("target", targetAsset.Hex()),
		zap.String("bought", bought.String()),
		zap.String("profit", profit.String()),
		zap.Uint64("slippage_bps", slip),
	)
	return profit, nil
}

// executeSwap performs one directed exchange on a venue: quote, approve the
// exact input, execute with the slippage-derived minimum output and a short
// validity window, and return the amount received.
func (e *Engine) executeSwap(ctx context.Context, v Venue, tokenIn, tokenOut common.Address, amountIn *big.Int, slipBps uint64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errors.New("swap input amount must be positive")
	}
	path := []common.Address{tokenIn, tokenOut}

	quoted, err := v.Router.QuoteOutput(ctx, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("quote on %s: %w", v.Name, err)
	}
	if len(quoted) < 2 {
		return nil, fmt.Errorf("quote on %s: short amounts vector", v.Name)
	}
	minOut := new(big.Int).Mul(quoted[len(quoted)-1], big.NewInt(bpsDenom-int64(slipBps)))
	minOut.Div(minOut, big.NewInt(bpsDenom))

	if err := e.tokens.Approve(ctx, tokenIn, v.Spender, amountIn); err != nil {
		return nil, fmt.Errorf("approve %s: %w", v.Name, err)
	}

	deadline := e.now().Add(swapValidity)
	out, err := v.Router.Swap(ctx, amountIn, minOut, path, e.self, deadline)
	if err != nil {
		return nil, fmt.Errorf("swap on %s: %w", v.Name, err)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("swap on %s: short amounts vector", v.Name)
	}
	return out[len(out)-1], nil
}
