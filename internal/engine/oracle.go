package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// validateAgainstOracle cross-checks the realized profit against the spread
// implied by the independent price feeds: with pair-normalized prices pB and
// pT, the oracle-implied profit on the loan is loan*pB/pT - loan. Feed
// unavailability (error, nil or zero price) is non-fatal and degrades to
// trusting venue prices. A deviation beyond the tolerance is the signature
// of a manipulated venue and aborts the transaction.
func (e *Engine) validateAgainstOracle(ctx context.Context, borrowAsset, targetAsset common.Address, realizedProfit, loanAmount *big.Int) error {
	if e.oracle == nil {
		return nil
	}
	pB, errB := e.oracle.Price(ctx, borrowAsset)
	pT, errT := e.oracle.Price(ctx, targetAsset)
	if errB != nil || errT != nil || pB == nil || pT == nil || pB.Sign() <= 0 || pT.Sign() <= 0 {
		e.log.Debug("oracle unavailable, skipping cross-check",
			zap.NamedError("borrow_feed", errB), zap.NamedError("target_feed", errT))
		return nil
	}

	implied := new(big.Int).Mul(loanAmount, pB)
	implied.Div(implied, pT)
	implied.Sub(implied, loanAmount)
	if implied.Sign() <= 0 {
		// oracle sees no spread at all; any realized profit is suspect
		return fmt.Errorf("%w: oracle implies no profit, realized %s", ErrOracleDeviation, realizedProfit)
	}

	diff := new(big.Int).Sub(realizedProfit, implied)
	diff.Abs(diff)
	deviationBps := new(big.Int).Mul(diff, big.NewInt(bpsDenom))
	deviationBps.Div(deviationBps, implied)
	if deviationBps.Cmp(big.NewInt(oracleToleranceBps)) > 0 {
		return fmt.Errorf("%w: realized %s vs implied %s (%s bps)",
			ErrOracleDeviation, realizedProfit, implied, deviationBps)
	}
	return nil
}
