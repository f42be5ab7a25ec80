// Package events is the observability surface of the executor: every state
// transition the owner cares about (trades, config changes, halts,
// withdrawals, liquidity checks) is emitted as a flat field map so sinks can
// ship it to a redis stream or a log without knowing the payload shape.
package events

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	KindTradeCompleted       = "trade_completed"
	KindConfigUpdated        = "config_updated"
	KindAssetWhitelisted     = "asset_whitelisted"
	KindAssetBlacklisted     = "asset_blacklisted"
	KindEmergencyHaltToggled = "emergency_halt_toggled"
	KindPauseToggled         = "pause_toggled"
	KindProfitWithdrawn      = "profit_withdrawn"
	KindLiquidityChecked     = "liquidity_checked"
)

type Event struct {
	Kind   string
	At     time.Time
	Fields map[string]any
}

// Sink receives events. Publish failures are reported to the caller but are
// never allowed to abort a trade; the engine logs and moves on.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

func TradeCompleted(at time.Time, borrow, target common.Address, amount, profit *big.Int, cost uint64, success bool) Event {
	return Event{
		Kind: KindTradeCompleted,
		At:   at,
		Fields: map[string]any{
			"borrow_asset": borrow.Hex(),
			"target_asset": target.Hex(),
			"amount":       amount.String(),
			"profit":       profit.String(),
			"cost_units":   cost,
			"success":      success,
		},
	}
}

func ConfigUpdated(at time.Time, maxSlippageBps, minProfitBps uint64, maxGasPrice, maxLoanAmount *big.Int, dynamicSlippage bool) Event {
	return Event{
		Kind: KindConfigUpdated,
		At:   at,
		Fields: map[string]any{
			"max_slippage_bps": maxSlippageBps,
			"min_profit_bps":   minProfitBps,
			"max_gas_price":    maxGasPrice.String(),
			"max_loan_amount":  maxLoanAmount.String(),
			"dynamic_slippage": dynamicSlippage,
		},
	}
}

func AssetWhitelisted(at time.Time, asset common.Address, maxLoan *big.Int, slippageBps uint64, requiresOracle bool) Event {
	return Event{
		Kind: KindAssetWhitelisted,
		At:   at,
		Fields: map[string]any{
			"asset":           asset.Hex(),
			"max_loan":        maxLoan.String(),
			"slippage_bps":    slippageBps,
			"requires_oracle": requiresOracle,
		},
	}
}

func AssetBlacklisted(at time.Time, asset common.Address) Event {
	return Event{
		Kind:   KindAssetBlacklisted,
		At:     at,
		Fields: map[string]any{"asset": asset.Hex()},
	}
}

func EmergencyHaltToggled(at time.Time, halted bool) Event {
	return Event{
		Kind:   KindEmergencyHaltToggled,
		At:     at,
		Fields: map[string]any{"halted": halted},
	}
}

func PauseToggled(at time.Time, paused bool) Event {
	return Event{
		Kind:   KindPauseToggled,
		At:     at,
		Fields: map[string]any{"paused": paused},
	}
}

func ProfitWithdrawn(at time.Time, asset, to common.Address, amount *big.Int) Event {
	return Event{
		Kind: KindProfitWithdrawn,
		At:   at,
		Fields: map[string]any{
			"asset":  asset.Hex(),
			"to":     to.Hex(),
			"amount": amount.String(),
		},
	}
}

func LiquidityChecked(at time.Time, borrow, target common.Address, reserveA, reserveB *big.Int) Event {
	return Event{
		Kind: KindLiquidityChecked,
		At:   at,
		Fields: map[string]any{
			"borrow_asset":    borrow.Hex(),
			"target_asset":    target.Hex(),
			"reserve_venue_a": reserveA.String(),
			"reserve_venue_b": reserveB.String(),
		},
	}
}
