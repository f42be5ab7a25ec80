package engine

import "errors"

// Error taxonomy. Precondition failures abort before any external call;
// failures inside the loan callback's arbitrage logic are caught and
// recorded as a failed trade; integrity failures propagate out of the
// callback so the host ledger discards the whole transaction.
var (
	// access
	ErrNotOwner = errors.New("caller is not the owner")

	// availability
	ErrPaused          = errors.New("system is paused")
	ErrEmergencyHalted = errors.New("emergency halt is active")

	// cost
	ErrGasPriceTooHigh = errors.New("gas price above configured ceiling")

	// policy
	ErrAssetNotWhitelisted = errors.New("asset not whitelisted")
	ErrLoanCapExceeded     = errors.New("loan amount exceeds cap")
	ErrDailyVolumeExceeded = errors.New("daily borrow volume exceeded")
	ErrProfitBelowMinimum  = errors.New("profit below configured minimum")
	ErrInsufficientProfit  = errors.New("arbitrage produced no profit")

	// market
	ErrInsufficientLiquidity = errors.New("insufficient venue liquidity")
	ErrOracleDeviation       = errors.New("profit deviates from oracle beyond tolerance")

	// integrity
	ErrUntrustedLender       = errors.New("loan callback from untrusted lender")
	ErrBadInitiator          = errors.New("loan not initiated by this engine")
	ErrInsufficientRepayment = errors.New("balance insufficient to repay loan")

	ErrTradeInFlight = errors.New("another arbitrage is already executing")
	ErrBadConfig     = errors.New("invalid configuration")
)
