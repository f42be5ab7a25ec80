package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littlekickoffkittie/flash/internal/events"
)

func enableDynamicSlippage(t *testing.T, h *harness, staticBps uint64) {
	t.Helper()
	require.NoError(t, h.eng.UpdateConfig(ownerAddr, ArbitrageConfig{
		MaxSlippageBps:  staticBps,
		MinProfitBps:    10,
		MaxGasPrice:     big.NewInt(1_000),
		MaxLoanAmount:   big.NewInt(10_000),
		DynamicSlippage: true,
	}))
}

func TestEstimateSlippage_StaticWhenDynamicDisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got := h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(1000))
	assert.Equal(t, uint64(300), got)

	// per-asset override wins over the global value
	require.NoError(t, h.eng.WhitelistAsset(ownerAddr, borrowAsset, big.NewInt(5_000), 150, false))
	got = h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(1000))
	assert.Equal(t, uint64(150), got)
}

func TestEstimateSlippage_WidensWithLoanSize(t *testing.T) {
	h := newHarness(t)
	enableDynamicSlippage(t, h, 300)
	ctx := context.Background()

	// borrow-side reserves are 1000000 on both venues, so a 1000 loan has a
	// 10 bps price impact and widens the static 300 by a tenth of that
	got := h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(1_000))
	assert.Equal(t, uint64(301), got)

	got = h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(100_000))
	assert.Equal(t, uint64(400), got)
}

func TestEstimateSlippage_CappedAtTwiceStatic(t *testing.T) {
	h := newHarness(t)
	enableDynamicSlippage(t, h, 300)
	ctx := context.Background()

	// impact of 3000 bps lands exactly on the cap
	got := h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(300_000))
	assert.Equal(t, uint64(600), got)

	// anything larger is clamped, never masking abnormal pricing
	got = h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(900_000))
	assert.Equal(t, uint64(600), got)
}

func TestEstimateSlippage_NeverExceedsFullDenomination(t *testing.T) {
	h := newHarness(t)
	enableDynamicSlippage(t, h, 9_000)
	ctx := context.Background()

	got := h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(2_000_000))
	assert.Equal(t, uint64(bpsDenom), got)
}

func TestEstimateSlippage_FallsBackWithoutReserveState(t *testing.T) {
	h := newHarness(t)
	enableDynamicSlippage(t, h, 300)
	ctx := context.Background()

	h.pairsB.pair = nil // venue B has no pool for the pair
	got := h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(1_000))
	assert.Equal(t, uint64(300), got)

	h.pairsB.pair = nil
	h.pairsA.err = assert.AnError
	got = h.eng.estimateSlippage(ctx, borrowAsset, targetAsset, big.NewInt(1_000))
	assert.Equal(t, uint64(300), got)
}

func TestCheckLiquidity_RequiresFiveTimesLoanOnPrimaryVenue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.eng.checkLiquidity(ctx, borrowAsset, targetAsset, big.NewInt(200_000)))

	err := h.eng.checkLiquidity(ctx, borrowAsset, targetAsset, big.NewInt(200_001))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	ev, ok := h.sink.last(events.KindLiquidityChecked)
	require.True(t, ok)
	assert.Equal(t, "1000000", ev.Fields["reserve_venue_a"])
}

func TestCheckLiquidity_ReadsBorrowSideRegardlessOfTokenOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// flip token order on venue A; the borrow side is now reserve1
	h.pairsA.pair = &fakePair{
		token0: targetAsset, token1: borrowAsset,
		r0: big.NewInt(10_000), r1: big.NewInt(1_000_000),
	}
	require.NoError(t, h.eng.checkLiquidity(ctx, borrowAsset, targetAsset, big.NewInt(200_000)))
}

func TestCheckLiquidity_MissingPrimaryPoolRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.pairsA.pair = nil
	err := h.eng.checkLiquidity(ctx, borrowAsset, targetAsset, big.NewInt(1_000))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// a missing secondary pool is tolerated here; pricing catches it later
	h.pairsA.pair = &fakePair{
		token0: borrowAsset, token1: targetAsset,
		r0: big.NewInt(1_000_000), r1: big.NewInt(10_000),
	}
	h.pairsB.pair = nil
	require.NoError(t, h.eng.checkLiquidity(ctx, borrowAsset, targetAsset, big.NewInt(1_000)))
}

func TestExecuteSwap_MinOutDerivedFromSlippage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.tokens.mint(borrowAsset, engineAddr, 1_000)

	// quote is 10; 300 bps of tolerated shortfall floors the output at 9
	out, err := h.eng.executeSwap(ctx, h.eng.venueA, borrowAsset, targetAsset, big.NewInt(1_000), 300)
	require.NoError(t, err)
	assert.Equal(t, "10", out.String())
	assert.Equal(t, "9", h.routerA.lastMinOut.String())

	// zero slippage demands the full quote
	h.tokens.mint(borrowAsset, engineAddr, 1_000)
	_, err = h.eng.executeSwap(ctx, h.eng.venueA, borrowAsset, targetAsset, big.NewInt(1_000), 0)
	require.NoError(t, err)
	assert.Equal(t, "10", h.routerA.lastMinOut.String())
}
