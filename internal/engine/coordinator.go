package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/littlekickoffkittie/flash/internal/events"
	"github.com/littlekickoffkittie/flash/internal/metrics"
)

// stateSnapshot captures the engine-owned mutable state that belongs to one
// logical transaction. The engine never undoes external transfers (the
// lender's transaction boundary does that), but when the lender reports
// that the transaction was discarded, the engine's own counters must be
// discarded with it.
type stateSnapshot struct {
	borrowAsset common.Address
	quota       *quotaState // nil if the asset had no quota entry
	loss        lossState
	perf        PerformanceMetrics
}

func (e *Engine) snapshot(borrowAsset common.Address) stateSnapshot {
	s := stateSnapshot{
		borrowAsset: borrowAsset,
		loss: lossState{
			cumulativeLossToday: new(big.Int).Set(e.loss.cumulativeLossToday),
			windowStart:         e.loss.windowStart,
			emergencyHalt:       e.loss.emergencyHalt,
		},
		perf: PerformanceMetrics{
			TotalTrades:          e.perf.TotalTrades,
			SuccessfulTrades:     e.perf.SuccessfulTrades,
			TotalProfit:          new(big.Int).Set(e.perf.TotalProfit),
			TotalLoss:            new(big.Int).Set(e.perf.TotalLoss),
			AverageExecutionCost: e.perf.AverageExecutionCost,
			LastUpdate:           e.perf.LastUpdate,
		},
	}
	if qs, ok := e.quota[borrowAsset]; ok {
		s.quota = &quotaState{volumeToday: new(big.Int).Set(qs.volumeToday), windowStart: qs.windowStart}
	}
	return s
}

func (e *Engine) restore(s stateSnapshot) {
	if s.quota == nil {
		delete(e.quota, s.borrowAsset)
	} else {
		e.quota[s.borrowAsset] = s.quota
	}
	e.loss = s.loss
	e.perf = s.perf
}

// InitiateArbitrage validates a trade request and, if every precondition
// holds, accrues the daily quota and requests the flash loan. The lender
// calls back into OnLoan synchronously; by the time RequestLoan returns the
// whole borrow/swap/swap/repay sequence has either committed or been
// discarded.
func (e *Engine) InitiateArbitrage(ctx context.Context, caller, borrowAsset common.Address, borrowAmount *big.Int, targetAsset common.Address, expectedProfit *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrTradeInFlight
	}
	defer e.inFlight.Store(false)

	if borrowAmount == nil || borrowAmount.Sign() <= 0 {
		return fmt.Errorf("%w: borrow amount must be positive", ErrBadConfig)
	}
	if expectedProfit == nil {
		expectedProfit = new(big.Int)
	}

	e.mu.RLock()
	paused, halted := e.paused, e.loss.emergencyHalt
	maxGas := e.cfg.MaxGasPrice
	e.mu.RUnlock()

	if paused {
		metrics.PreconditionRejects.WithLabelValues("paused").Inc()
		return ErrPaused
	}
	if halted {
		metrics.PreconditionRejects.WithLabelValues("emergency_halt").Inc()
		return ErrEmergencyHalted
	}

	gasPrice, err := e.gas.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("read gas price: %w", err)
	}
	if gasPrice.Cmp(maxGas) > 0 {
		metrics.PreconditionRejects.WithLabelValues("gas_price").Inc()
		return fmt.Errorf("%w: current %s, ceiling %s", ErrGasPriceTooHigh, gasPrice, maxGas)
	}

	e.mu.Lock()
	if err := e.checkPolicy(borrowAsset, targetAsset, borrowAmount, expectedProfit); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.accrueQuota(borrowAsset, borrowAmount); err != nil {
		e.mu.Unlock()
		metrics.PreconditionRejects.WithLabelValues("quota").Inc()
		return err
	}
	snap := e.snapshot(borrowAsset)
	e.mu.Unlock()

	params, err := encodeTradeParams(tradeParams{
		BorrowAsset:    borrowAsset,
		Amount:         borrowAmount,
		TargetAsset:    targetAsset,
		ExpectedProfit: expectedProfit,
	})
	if err != nil {
		e.mu.Lock()
		e.restore(snap)
		e.mu.Unlock()
		return err
	}

	e.log.Info("requesting flash loan",
		zap.String("borrow", borrowAsset.Hex()),
		zap.String("target", targetAsset.Hex()),
		zap.String("amount", borrowAmount.String()),
	)
	metrics.LoanRequests.Inc()

	if err := e.lenderSvc.RequestLoan(ctx, e.self, []common.Address{borrowAsset}, []*big.Int{borrowAmount}, params); err != nil {
		// the lender discarded the transaction; discard our counters too
		e.mu.Lock()
		e.restore(snap)
		e.mu.Unlock()
		return fmt.Errorf("flash loan: %w", err)
	}
	return nil
}

// checkPolicy runs the whitelist, cap and expected-profit preconditions in
// order, each failing fast with its distinct error. Caller holds e.mu.
func (e *Engine) checkPolicy(borrowAsset, targetAsset common.Address, borrowAmount, expectedProfit *big.Int) error {
	for _, asset := range []common.Address{borrowAsset, targetAsset} {
		if ac, ok := e.registry[asset]; !ok || !ac.Whitelisted {
			metrics.PreconditionRejects.WithLabelValues("whitelist").Inc()
			return fmt.Errorf("%w: %s", ErrAssetNotWhitelisted, asset.Hex())
		}
	}
	if cap := e.applicableCap(borrowAsset); borrowAmount.Cmp(cap) > 0 {
		metrics.PreconditionRejects.WithLabelValues("loan_cap").Inc()
		return fmt.Errorf("%w: requested %s, maximum %s", ErrLoanCapExceeded, borrowAmount, cap)
	}
	if minProfit := mulBps(borrowAmount, e.cfg.MinProfitBps); expectedProfit.Cmp(minProfit) < 0 {
		metrics.PreconditionRejects.WithLabelValues("expected_profit").Inc()
		return fmt.Errorf("%w: expected %s, minimum %s", ErrProfitBelowMinimum, expectedProfit, minProfit)
	}
	return nil
}

// OnLoan is the flash-loan callback. Only the registered lender may invoke
// it, and only for loans this engine initiated. The arbitrage attempt runs
// behind a recover boundary; its failure is recorded, not propagated. What
// does propagate is an unsatisfiable repayment, which instructs the lender
// to discard every effect of the transaction.
func (e *Engine) OnLoan(ctx context.Context, caller, initiator, asset common.Address, amount, premium *big.Int, params []byte) error {
	if caller != e.lender {
		return fmt.Errorf("%w: %s", ErrUntrustedLender, caller.Hex())
	}
	if initiator != e.self {
		return fmt.Errorf("%w: initiator %s", ErrBadInitiator, initiator.Hex())
	}
	tp, err := decodeTradeParams(params)
	if err != nil {
		return err
	}
	if tp.BorrowAsset != asset || tp.Amount.Cmp(amount) != 0 {
		return fmt.Errorf("%w: callback asset/amount does not match trade params", ErrBadInitiator)
	}
	if premium == nil {
		premium = new(big.Int)
	}

	costStart := e.meter.Consumed()
	res := e.runGuarded(ctx, asset, tp.TargetAsset, amount, premium)
	cost := e.meter.Consumed() - costStart

	if res.ok {
		e.mu.RLock()
		minProfit := mulBps(amount, e.cfg.MinProfitBps)
		needOracle := e.registry[asset].RequiresOracle || e.registry[tp.TargetAsset].RequiresOracle
		e.mu.RUnlock()

		if res.profit.Cmp(minProfit) < 0 {
			return fmt.Errorf("%w: realized %s, minimum %s", ErrProfitBelowMinimum, res.profit, minProfit)
		}
		if needOracle {
			if err := e.validateAgainstOracle(ctx, asset, tp.TargetAsset, res.profit, amount); err != nil {
				return err
			}
		}
		e.mu.Lock()
		e.recordSuccess(res.profit, cost)
		e.mu.Unlock()
	} else {
		e.log.Warn("arbitrage logic failed, repaying from holdings",
			zap.String("reason", res.reason),
			zap.String("borrow", asset.Hex()),
			zap.String("target", tp.TargetAsset.Hex()),
		)
		loss := e.tradeLoss(cost)
		e.mu.Lock()
		e.recordFailure(loss, cost)
		e.recordLoss(loss)
		e.mu.Unlock()
	}

	owed := new(big.Int).Add(amount, premium)
	if err := e.tokens.Approve(ctx, asset, e.lender, owed); err != nil {
		return fmt.Errorf("approve repayment: %w", err)
	}
	balance, err := e.tokens.BalanceOf(ctx, asset, e.self)
	if err != nil {
		return fmt.Errorf("read repayment balance: %w", err)
	}
	if balance.Cmp(owed) < 0 {
		return fmt.Errorf("%w: have %s, owe %s", ErrInsufficientRepayment, balance, owed)
	}

	e.emit(events.TradeCompleted(e.now(), asset, tp.TargetAsset, amount, res.profit, cost, res.ok))
	return nil
}

func mulBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Div(out, big.NewInt(bpsDenom))
}
