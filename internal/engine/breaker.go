package engine

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/littlekickoffkittie/flash/internal/events"
)

// recordLoss accumulates a realized loss into the daily counter and trips
// the sticky emergency halt once the limit is exceeded. The halt survives
// the daily reset and is cleared only by explicit owner action.
//
// Caller holds e.mu.
func (e *Engine) recordLoss(loss *big.Int) {
	if loss == nil || loss.Sign() <= 0 {
		return
	}
	if e.now().Sub(e.loss.windowStart) >= dayWindow {
		e.loss.cumulativeLossToday.SetInt64(0)
		e.loss.windowStart = e.now()
	}
	e.loss.cumulativeLossToday.Add(e.loss.cumulativeLossToday, loss)
	if !e.loss.emergencyHalt && e.loss.cumulativeLossToday.Cmp(e.maxDailyLoss) > 0 {
		e.loss.emergencyHalt = true
		e.log.Error("daily loss limit exceeded, tripping emergency halt",
			zap.String("cumulative_loss", e.loss.cumulativeLossToday.String()),
			zap.String("limit", e.maxDailyLoss.String()),
		)
		e.emit(events.EmergencyHaltToggled(e.now(), true))
	}
}

// tradeLoss prices the execution cost of a failed trade at the current gas
// price. A gas price read failure degrades to a zero loss rather than
// aborting the accounting path.
func (e *Engine) tradeLoss(costUnits uint64) *big.Int {
	gp, err := e.gas.GasPrice(context.Background())
	if err != nil || gp == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(gp, new(big.Int).SetUint64(costUnits))
}
