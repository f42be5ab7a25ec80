// Package engine implements the guarded flash-loan arbitrage executor: the
// execution coordinator, trade-parameter validation, liquidity and slippage
// estimation, the two-leg swap sequence, profit verification, oracle
// cross-checking, the daily loss circuit breaker, per-asset whitelisting and
// volume quotas, and trade performance accounting.
//
// The engine never unwinds effects itself. It computes whether repayment is
// satisfied and signals failure explicitly; the lender's transaction
// boundary performs the actual rollback.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/littlekickoffkittie/flash/internal/events"
	"github.com/littlekickoffkittie/flash/internal/venue"
)

const (
	bpsDenom = 10_000

	// quota and breaker windows reset lazily once a full day has elapsed
	dayWindow = 24 * time.Hour

	// daily borrow volume per asset is capped at this multiple of the
	// applicable max-loan amount
	quotaMultiple = 10

	// the primary venue must hold at least this multiple of the loan in
	// the borrow-side reserve
	minLiquidityMultiple = 5

	// realized profit may deviate from the oracle-implied figure by at
	// most this much
	oracleToleranceBps = 2_000

	// validity window attached to every swap to bound quote staleness
	swapValidity = 300 * time.Second
)

// ArbitrageConfig holds the global risk parameters. All bps fields must be
// within [0, 10000].
type ArbitrageConfig struct {
	MaxSlippageBps  uint64
	MinProfitBps    uint64
	MaxGasPrice     *big.Int
	MaxLoanAmount   *big.Int
	DynamicSlippage bool
}

func (c ArbitrageConfig) validate() error {
	if c.MaxSlippageBps > bpsDenom || c.MinProfitBps > bpsDenom {
		return fmt.Errorf("%w: bps fields must be within [0, %d]", ErrBadConfig, bpsDenom)
	}
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() <= 0 {
		return fmt.Errorf("%w: max gas price must be positive", ErrBadConfig)
	}
	if c.MaxLoanAmount == nil || c.MaxLoanAmount.Sign() <= 0 {
		return fmt.Errorf("%w: max loan amount must be positive", ErrBadConfig)
	}
	return nil
}

// AssetConfig is the per-asset policy. Blacklisting flips Whitelisted off
// but keeps the rest, so caps and the oracle flag survive re-listing.
type AssetConfig struct {
	Whitelisted    bool
	MaxLoanAmount  *big.Int
	SlippageBps    uint64
	RequiresOracle bool
}

// PerformanceMetrics aggregates trade outcomes. AverageExecutionCost is a
// running mean over every trade, success or failure.
type PerformanceMetrics struct {
	TotalTrades          uint64
	SuccessfulTrades     uint64
	TotalProfit          *big.Int
	TotalLoss            *big.Int
	AverageExecutionCost float64
	LastUpdate           time.Time
}

type quotaState struct {
	volumeToday *big.Int
	windowStart time.Time
}

type lossState struct {
	cumulativeLossToday *big.Int
	windowStart         time.Time
	emergencyHalt       bool
}

// Venue bundles the router and pool registry of one price venue. Spender is
// the identity that input-amount approvals are granted to before each swap.
type Venue struct {
	Name    string
	Router  venue.Router
	Pairs   venue.PairSource
	Spender common.Address
}

// Deps wires the engine to its collaborators and initial risk parameters.
type Deps struct {
	Owner  common.Address // owning principal; sole caller of admin surface
	Self   common.Address // engine identity as loan receiver and initiator
	Lender common.Address // only identity allowed to invoke the loan callback

	LenderService venue.Lender
	VenueA        Venue
	VenueB        Venue
	Tokens        venue.Tokens
	Oracle        venue.PriceOracle // optional; nil disables cross-checks
	Gas           venue.GasPricer
	Meter         venue.CostMeter
	Sink          events.Sink // optional
	Log           *zap.Logger

	Config       ArbitrageConfig
	MaxDailyLoss *big.Int

	Now func() time.Time // optional; defaults to time.Now
}

type Engine struct {
	mu       sync.RWMutex
	inFlight atomic.Bool

	owner  common.Address
	self   common.Address
	lender common.Address
	paused bool

	cfg          ArbitrageConfig
	registry     map[common.Address]AssetConfig
	quota        map[common.Address]*quotaState
	loss         lossState
	perf         PerformanceMetrics
	maxDailyLoss *big.Int

	lenderSvc venue.Lender
	venueA    Venue
	venueB    Venue
	tokens    venue.Tokens
	oracle    venue.PriceOracle
	gas       venue.GasPricer
	meter     venue.CostMeter
	sink      events.Sink
	log       *zap.Logger
	now       func() time.Time
}

func New(d Deps) (*Engine, error) {
	if err := d.Config.validate(); err != nil {
		return nil, err
	}
	if d.LenderService == nil || d.Tokens == nil || d.Gas == nil || d.Meter == nil {
		return nil, fmt.Errorf("%w: lender, tokens, gas pricer and cost meter are required", ErrBadConfig)
	}
	if d.VenueA.Router == nil || d.VenueB.Router == nil {
		return nil, fmt.Errorf("%w: both venue routers are required", ErrBadConfig)
	}
	if d.MaxDailyLoss == nil || d.MaxDailyLoss.Sign() <= 0 {
		return nil, fmt.Errorf("%w: max daily loss must be positive", ErrBadConfig)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		owner:        d.Owner,
		self:         d.Self,
		lender:       d.Lender,
		cfg:          d.Config,
		registry:     make(map[common.Address]AssetConfig, 8),
		quota:        make(map[common.Address]*quotaState, 8),
		loss:         lossState{cumulativeLossToday: new(big.Int), windowStart: d.Now()},
		perf:         PerformanceMetrics{TotalProfit: new(big.Int), TotalLoss: new(big.Int)},
		maxDailyLoss: new(big.Int).Set(d.MaxDailyLoss),
		lenderSvc:    d.LenderService,
		venueA:       d.VenueA,
		venueB:       d.VenueB,
		tokens:       d.Tokens,
		oracle:       d.Oracle,
		gas:          d.Gas,
		meter:        d.Meter,
		sink:         d.Sink,
		log:          d.Log,
		now:          d.Now,
	}, nil
}

// requireOwner gates the admin surface on the single authenticated
// principal.
func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

// applicableCap returns the per-asset loan cap when set, the global one
// otherwise.
func (e *Engine) applicableCap(asset common.Address) *big.Int {
	if ac, ok := e.registry[asset]; ok && ac.MaxLoanAmount != nil && ac.MaxLoanAmount.Sign() > 0 {
		return ac.MaxLoanAmount
	}
	return e.cfg.MaxLoanAmount
}

// staticSlippageFor returns the per-asset slippage override when set, the
// global max otherwise.
func (e *Engine) staticSlippageFor(asset common.Address) uint64 {
	if ac, ok := e.registry[asset]; ok && ac.SlippageBps > 0 {
		return ac.SlippageBps
	}
	return e.cfg.MaxSlippageBps
}

func (e *Engine) emit(ev events.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(context.Background(), ev); err != nil {
		e.log.Warn("event publish failed", zap.String("kind", ev.Kind), zap.Error(err))
	}
}

// NewLogger builds the production JSON logger used by the executor binary.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
