package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// accrueQuota enforces the rolling daily borrow-volume cap for an asset and
// accumulates the new amount. The window resets lazily once a full day has
// elapsed; the counter is never decremented inside a window.
//
// Caller holds e.mu.
func (e *Engine) accrueQuota(asset common.Address, amount *big.Int) error {
	qs, ok := e.quota[asset]
	if !ok {
		qs = &quotaState{volumeToday: new(big.Int), windowStart: e.now()}
		e.quota[asset] = qs
	}
	if e.now().Sub(qs.windowStart) >= dayWindow {
		qs.volumeToday.SetInt64(0)
		qs.windowStart = e.now()
	}

	limit := new(big.Int).Mul(e.applicableCap(asset), big.NewInt(quotaMultiple))
	next := new(big.Int).Add(qs.volumeToday, amount)
	if next.Cmp(limit) > 0 {
		return fmt.Errorf("%w: asset %s, used %s, requested %s, limit %s",
			ErrDailyVolumeExceeded, asset.Hex(), qs.volumeToday, amount, limit)
	}
	qs.volumeToday.Set(next)
	return nil
}

// RemainingDailyQuota reports how much more of an asset may be borrowed in
// the current window. Read-only; an expired window reads as a full quota
// without mutating state.
func (e *Engine) RemainingDailyQuota(asset common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	limit := new(big.Int).Mul(e.applicableCap(asset), big.NewInt(quotaMultiple))
	qs, ok := e.quota[asset]
	if !ok || e.now().Sub(qs.windowStart) >= dayWindow {
		return limit
	}
	rem := new(big.Int).Sub(limit, qs.volumeToday)
	if rem.Sign() < 0 {
		rem.SetInt64(0)
	}
	return rem
}
