package engine

import (
	"math/big"

	"github.com/littlekickoffkittie/flash/internal/metrics"
)

// recordSuccess and recordFailure update the performance counters and their
// prometheus mirrors. AverageExecutionCost is an incremental mean over every
// trade, success or failure: avg' = (avg*(n-1)+cost)/n with n the
// post-increment trade count.
//
// Caller holds e.mu.

func (e *Engine) recordSuccess(profit *big.Int, costUnits uint64) {
	e.perf.TotalTrades++
	e.perf.SuccessfulTrades++
	e.perf.TotalProfit.Add(e.perf.TotalProfit, profit)
	e.updateAvgCost(costUnits)

	metrics.TradesTotal.Inc()
	metrics.TradesSuccessful.Inc()
	metrics.ProfitTotal.Add(bigToFloat(profit))
	metrics.AvgExecutionCost.Set(e.perf.AverageExecutionCost)
}

func (e *Engine) recordFailure(loss *big.Int, costUnits uint64) {
	e.perf.TotalTrades++
	if loss != nil && loss.Sign() > 0 {
		e.perf.TotalLoss.Add(e.perf.TotalLoss, loss)
		metrics.LossTotal.Add(bigToFloat(loss))
	}
	e.updateAvgCost(costUnits)

	metrics.TradesTotal.Inc()
	metrics.AvgExecutionCost.Set(e.perf.AverageExecutionCost)
}

func (e *Engine) updateAvgCost(costUnits uint64) {
	n := float64(e.perf.TotalTrades)
	e.perf.AverageExecutionCost = (e.perf.AverageExecutionCost*(n-1) + float64(costUnits)) / n
	e.perf.LastUpdate = e.now()
}

// Metrics returns a copy of the performance counters. Read-only.
func (e *Engine) Metrics() PerformanceMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.perf
	out.TotalProfit = new(big.Int).Set(e.perf.TotalProfit)
	out.TotalLoss = new(big.Int).Set(e.perf.TotalLoss)
	return out
}

func bigToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
