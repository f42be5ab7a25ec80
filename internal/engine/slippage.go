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

// estimateSlippage computes the tolerated-output shortfall for a trade, in
// bps. With dynamic slippage disabled (or reserve state unavailable) the
// static per-asset or global value applies. Otherwise the allowance widens
// with loan size relative to the average borrow-side reserve across both
// venues, capped at twice the static value so abnormal pricing is never
// masked.
//
// The average deliberately considers only the borrow-side reserves, not the
// opposite side of the second leg; this mirrors the documented formula.
func (e *Engine) estimateSlippage(ctx context.Context, borrowAsset, targetAsset common.Address, loanAmount *big.Int) uint64 {
	static := e.staticSlippageFor(borrowAsset)
	if !e.cfg.DynamicSlippage {
		return static
	}

	resA, okA, errA := borrowSideReserve(ctx, e.venueA.Pairs, borrowAsset, targetAsset)
	resB, okB, errB := borrowSideReserve(ctx, e.venueB.Pairs, borrowAsset, targetAsset)
	if errA != nil || errB != nil || !okA || !okB {
		e.log.Debug("dynamic slippage unavailable, using static",
			zap.Bool("pool_a", okA), zap.Bool("pool_b", okB))
		return static
	}

	avg := new(big.Int).Add(resA, resB)
	avg.Rsh(avg, 1)
	if avg.Sign() == 0 {
		return static
	}

	impact := new(big.Int).Mul(loanAmount, big.NewInt(bpsDenom))
	impact.Div(impact, avg)

	slip := static + impact.Uint64()/10
	if cap := 2 * static; slip > cap {
		slip = cap
	}
	if slip > bpsDenom {
		slip = bpsDenom
	}
	return slip
}

// checkLiquidity rejects trades that would hit a thin pool: the borrow-side
// reserve on the primary venue must cover the loan several times over.
// Emits the liquidity-checked event with the observed reserves.
func (e *Engine) checkLiquidity(ctx context.Context, borrowAsset, targetAsset common.Address, loanAmount *big.Int) error {
	resA, okA, errA := borrowSideReserve(ctx, e.venueA.Pairs, borrowAsset, targetAsset)
	if errA != nil {
		return fmt.Errorf("%w: reading %s reserves: %v", ErrInsufficientLiquidity, e.venueA.Name, errA)
	}
	resB, okB, _ := borrowSideReserve(ctx, e.venueB.Pairs, borrowAsset, targetAsset)
	if !okB || resB == nil {
		resB = new(big.Int)
	}
	if !okA || resA == nil {
		return fmt.Errorf("%w: no %s pool for pair", ErrInsufficientLiquidity, e.venueA.Name)
	}

	e.emit(events.LiquidityChecked(e.now(), borrowAsset, targetAsset, resA, resB))

	need := new(big.Int).Mul(loanAmount, big.NewInt(minLiquidityMultiple))
	if resA.Cmp(need) < 0 {
		return fmt.Errorf("%w: %s reserve %s below %dx loan %s",
			ErrInsufficientLiquidity, e.venueA.Name, resA, minLiquidityMultiple, loanAmount)
	}
	return nil
}

// borrowSideReserve resolves the pair on one venue and returns the reserve
// of tokenA's side. ok is false when the venue has no pool for the pair.
func borrowSideReserve(ctx context.Context, ps venue.PairSource, tokenA, tokenB common.Address) (*big.Int, bool, error) {
	if ps == nil {
		return nil, false, nil
	}
	pair, ok, err := ps.Pair(ctx, tokenA, tokenB)
	if err != nil || !ok {
		return nil, false, err
	}
	r0, r1, _, err := pair.Reserves(ctx)
	if err != nil {
		return nil, false, err
	}
	t0, err := pair.Token0(ctx)
	if err != nil {
		return nil, false, err
	}
	if t0 == tokenA {
		return r0, true, nil
	}
	return r1, true, nil
}
