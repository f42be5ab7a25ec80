package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_trades_total",
		Help: "Number of arbitrage trades attempted inside a loan callback",
	})

	TradesSuccessful = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_trades_successful_total",
		Help: "Number of arbitrage trades that closed with verified profit",
	})

	ProfitTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_profit_wei_total",
		Help: "Cumulative realized profit in borrow-asset wei",
	})

	LossTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_loss_wei_total",
		Help: "Cumulative realized loss in wei (execution cost of failed trades)",
	})

	AvgExecutionCost = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flash_avg_execution_cost_units",
		Help: "Running mean of execution-cost units per trade",
	})

	LoanRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_loan_requests_total",
		Help: "Number of flash loans requested",
	})

	PreconditionRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flash_precondition_rejects_total",
		Help: "Trades rejected before any external call, by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		TradesTotal,
		TradesSuccessful,
		ProfitTotal,
		LossTotal,
		AvgExecutionCost,
		LoanRequests,
		PreconditionRejects,
	)
}
