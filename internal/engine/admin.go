package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/littlekickoffkittie/flash/internal/events"
	"github.com/littlekickoffkittie/flash/internal/venue"
)

// Administrative surface. Every mutator is gated on the owning principal;
// the read-only accessors never mutate state.

// UpdateConfig replaces the five global risk fields after validation.
func (e *Engine) UpdateConfig(caller common.Address, cfg ArbitrageConfig) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = ArbitrageConfig{
		MaxSlippageBps:  cfg.MaxSlippageBps,
		MinProfitBps:    cfg.MinProfitBps,
		MaxGasPrice:     new(big.Int).Set(cfg.MaxGasPrice),
		MaxLoanAmount:   new(big.Int).Set(cfg.MaxLoanAmount),
		DynamicSlippage: cfg.DynamicSlippage,
	}
	e.mu.Unlock()

	e.emit(events.ConfigUpdated(e.now(), cfg.MaxSlippageBps, cfg.MinProfitBps, cfg.MaxGasPrice, cfg.MaxLoanAmount, cfg.DynamicSlippage))
	return nil
}

// WhitelistAsset creates or updates the per-asset policy and marks it
// tradeable. Slippage beyond 10000 bps is rejected.
func (e *Engine) WhitelistAsset(caller, asset common.Address, maxLoan *big.Int, slippageBps uint64, requiresOracle bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if slippageBps > bpsDenom {
		return fmt.Errorf("%w: slippage %d bps", ErrBadConfig, slippageBps)
	}
	if maxLoan == nil {
		maxLoan = new(big.Int)
	}
	e.mu.Lock()
	e.registry[asset] = AssetConfig{
		Whitelisted:    true,
		MaxLoanAmount:  new(big.Int).Set(maxLoan),
		SlippageBps:    slippageBps,
		RequiresOracle: requiresOracle,
	}
	e.mu.Unlock()

	e.emit(events.AssetWhitelisted(e.now(), asset, maxLoan, slippageBps, requiresOracle))
	return nil
}

// BlacklistAsset flips the whitelist flag off. The rest of the asset's
// history (cap, slippage, oracle flag) is retained, never deleted.
func (e *Engine) BlacklistAsset(caller, asset common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	ac, ok := e.registry[asset]
	if ok {
		ac.Whitelisted = false
		e.registry[asset] = ac
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotWhitelisted, asset.Hex())
	}
	e.emit(events.AssetBlacklisted(e.now(), asset))
	return nil
}

// SetOracle swaps the cross-check price feed. A nil oracle disables
// validation entirely.
func (e *Engine) SetOracle(caller common.Address, oracle venue.PriceOracle) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.oracle = oracle
	e.mu.Unlock()
	return nil
}

// SetEmergencyHalt toggles the circuit breaker by owner decree. Clearing it
// is the only way out once the daily loss limit has tripped it.
func (e *Engine) SetEmergencyHalt(caller common.Address, halted bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.loss.emergencyHalt = halted
	e.mu.Unlock()

	e.log.Warn("emergency halt toggled", zap.Bool("halted", halted))
	e.emit(events.EmergencyHaltToggled(e.now(), halted))
	return nil
}

// Pause stops new trades without touching the breaker state.
func (e *Engine) Pause(caller common.Address) error   { return e.setPaused(caller, true) }
func (e *Engine) Unpause(caller common.Address) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller common.Address, paused bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
	e.emit(events.PauseToggled(e.now(), paused))
	return nil
}

// WithdrawProfit transfers the engine's full balance of each given asset to
// the owner.
func (e *Engine) WithdrawProfit(ctx context.Context, caller common.Address, assets ...common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	for _, asset := range assets {
		bal, err := e.tokens.BalanceOf(ctx, asset, e.self)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", asset.Hex(), err)
		}
		if bal.Sign() <= 0 {
			continue
		}
		if err := e.tokens.Transfer(ctx, asset, e.owner, bal); err != nil {
			return fmt.Errorf("withdraw %s: %w", asset.Hex(), err)
		}
		e.emit(events.ProfitWithdrawn(e.now(), asset, e.owner, bal))
	}
	return nil
}

// Rescue moves a stray balance of any asset to an address of the owner's
// choosing.
func (e *Engine) Rescue(ctx context.Context, caller, asset, to common.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	bal, err := e.tokens.BalanceOf(ctx, asset, e.self)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", asset.Hex(), err)
	}
	if bal.Sign() <= 0 {
		return nil
	}
	if err := e.tokens.Transfer(ctx, asset, to, bal); err != nil {
		return fmt.Errorf("rescue %s: %w", asset.Hex(), err)
	}
	e.emit(events.ProfitWithdrawn(e.now(), asset, to, bal))
	return nil
}

// Config returns a copy of the global risk parameters. Read-only.
func (e *Engine) Config() ArbitrageConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ArbitrageConfig{
		MaxSlippageBps:  e.cfg.MaxSlippageBps,
		MinProfitBps:    e.cfg.MinProfitBps,
		MaxGasPrice:     new(big.Int).Set(e.cfg.MaxGasPrice),
		MaxLoanAmount:   new(big.Int).Set(e.cfg.MaxLoanAmount),
		DynamicSlippage: e.cfg.DynamicSlippage,
	}
}

// AssetConfig returns a copy of one asset's policy. Read-only.
func (e *Engine) AssetConfig(asset common.Address) (AssetConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ac, ok := e.registry[asset]
	if !ok {
		return AssetConfig{}, false
	}
	out := ac
	if ac.MaxLoanAmount != nil {
		out.MaxLoanAmount = new(big.Int).Set(ac.MaxLoanAmount)
	}
	return out, true
}

// Halted reports whether the breaker or the pause switch blocks trading.
func (e *Engine) Halted() (paused, emergencyHalt bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused, e.loss.emergencyHalt
}
