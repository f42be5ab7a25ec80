package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/littlekickoffkittie/flash/internal/events"
	"github.com/littlekickoffkittie/flash/internal/venue"
)

var (
	ownerAddr   = common.HexToAddress("0xA1")
	engineAddr  = common.HexToAddress("0xE1")
	lenderAddr  = common.HexToAddress("0xF1")
	routerAAddr = common.HexToAddress("0xAA")
	routerBAddr = common.HexToAddress("0xBB")
	borrowAsset = common.HexToAddress("0xB0")
	targetAsset = common.HexToAddress("0xC0")
	otherAddr   = common.HexToAddress("0xDD")
)

// ---------- token ledger with snapshot/restore ----------

type approvalKey struct{ asset, owner, spender common.Address }
type balanceKey struct{ asset, holder common.Address }

// fakeTokens emulates the host ledger: balances and allowances with a
// snapshot/restore pair so the fake lender can discard every effect of a
// failed transaction, the way the real ledger would.
type fakeTokens struct {
	mu        sync.Mutex
	balances  map[balanceKey]*big.Int
	approvals map[approvalKey]*big.Int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{
		balances:  make(map[balanceKey]*big.Int),
		approvals: make(map[approvalKey]*big.Int),
	}
}

func (f *fakeTokens) mint(asset, holder common.Address, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := balanceKey{asset, holder}
	if f.balances[k] == nil {
		f.balances[k] = new(big.Int)
	}
	f.balances[k].Add(f.balances[k], big.NewInt(amount))
}

func (f *fakeTokens) balance(asset, holder common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.balances[balanceKey{asset, holder}]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (f *fakeTokens) BalanceOf(_ context.Context, asset, holder common.Address) (*big.Int, error) {
	return f.balance(asset, holder), nil
}

func (f *fakeTokens) Approve(_ context.Context, asset, spender common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// approvals are granted by the engine; it is the only caller here
	f.approvals[approvalKey{asset, engineAddr, spender}] = new(big.Int).Set(amount)
	return nil
}

func (f *fakeTokens) Transfer(_ context.Context, asset, to common.Address, amount *big.Int) error {
	return f.move(asset, engineAddr, to, amount)
}

func (f *fakeTokens) move(asset, from, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fk := balanceKey{asset, from}
	if f.balances[fk] == nil || f.balances[fk].Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s", asset.Hex())
	}
	f.balances[fk].Sub(f.balances[fk], amount)
	tk := balanceKey{asset, to}
	if f.balances[tk] == nil {
		f.balances[tk] = new(big.Int)
	}
	f.balances[tk].Add(f.balances[tk], amount)
	return nil
}

// spendApproved debits owner's balance and allowance in favor of spender.
func (f *fakeTokens) spendApproved(asset, owner, spender common.Address, amount *big.Int) error {
	f.mu.Lock()
	ak := approvalKey{asset, owner, spender}
	if f.approvals[ak] == nil || f.approvals[ak].Cmp(amount) < 0 {
		f.mu.Unlock()
		return fmt.Errorf("allowance too low for %s", spender.Hex())
	}
	f.approvals[ak].Sub(f.approvals[ak], amount)
	f.mu.Unlock()
	return f.move(asset, owner, spender, amount)
}

type ledgerSnapshot struct {
	balances  map[balanceKey]*big.Int
	approvals map[approvalKey]*big.Int
}

func (f *fakeTokens) snapshot() ledgerSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := ledgerSnapshot{
		balances:  make(map[balanceKey]*big.Int, len(f.balances)),
		approvals: make(map[approvalKey]*big.Int, len(f.approvals)),
	}
	for k, v := range f.balances {
		s.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range f.approvals {
		s.approvals[k] = new(big.Int).Set(v)
	}
	return s
}

func (f *fakeTokens) restore(s ledgerSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = s.balances
	f.approvals = s.approvals
}

// ---------- price venue ----------

// fakeRouter quotes and fills at a fixed num/den price and settles against
// the fake ledger, enforcing the approval the engine must have granted.
type fakeRouter struct {
	name     string
	addr     common.Address
	tokens   *fakeTokens
	num, den int64
	quoteErr error
	swapErr  error
	swaps    int

	lastMinOut   *big.Int
	lastDeadline time.Time
}

func (r *fakeRouter) priceOut(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(r.num))
	return out.Div(out, big.NewInt(r.den))
}

func (r *fakeRouter) QuoteOutput(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if r.quoteErr != nil {
		return nil, r.quoteErr
	}
	return []*big.Int{new(big.Int).Set(amountIn), r.priceOut(amountIn)}, nil
}

func (r *fakeRouter) Swap(_ context.Context, amountIn, minOut *big.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*big.Int, error) {
	r.lastMinOut = new(big.Int).Set(minOut)
	r.lastDeadline = deadline
	if r.swapErr != nil {
		return nil, r.swapErr
	}
	out := r.priceOut(amountIn)
	if out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%s: output below minimum", r.name)
	}
	if err := r.tokens.spendApproved(path[0], recipient, r.addr, amountIn); err != nil {
		return nil, err
	}
	r.tokens.mu.Lock()
	tk := balanceKey{path[1], recipient}
	if r.tokens.balances[tk] == nil {
		r.tokens.balances[tk] = new(big.Int)
	}
	r.tokens.balances[tk].Add(r.tokens.balances[tk], out)
	r.tokens.mu.Unlock()
	r.swaps++
	return []*big.Int{new(big.Int).Set(amountIn), out}, nil
}

func (r *fakeRouter) Factory(context.Context) (common.Address, error) {
	return common.Address{}, nil
}

// ---------- pairs ----------

type fakePair struct {
	token0, token1 common.Address
	r0, r1         *big.Int
}

func (p *fakePair) Reserves(context.Context) (*big.Int, *big.Int, uint32, error) {
	return new(big.Int).Set(p.r0), new(big.Int).Set(p.r1), 0, nil
}
func (p *fakePair) Token0(context.Context) (common.Address, error) { return p.token0, nil }
func (p *fakePair) Token1(context.Context) (common.Address, error) { return p.token1, nil }

type fakePairSource struct {
	pair *fakePair
	err  error
}

func (s *fakePairSource) Pair(_ context.Context, a, b common.Address) (venue.Pair, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if s.pair == nil {
		return nil, false, nil
	}
	if (a == s.pair.token0 && b == s.pair.token1) || (a == s.pair.token1 && b == s.pair.token0) {
		return s.pair, true, nil
	}
	return nil, false, nil
}

// ---------- lender with transaction-boundary semantics ----------

// fakeLender credits the loan, invokes the callback and collects repayment.
// Any error along the way restores the ledger snapshot, mirroring the
// all-or-nothing commit of the host ledger.
type fakeLender struct {
	addr       common.Address
	tokens     *fakeTokens
	eng        *Engine
	premiumBps int64
	calls      int

	beforeCallback func(ctx context.Context) // reentrancy and abuse hooks
}

func (l *fakeLender) premium(amount *big.Int) *big.Int {
	p := new(big.Int).Mul(amount, big.NewInt(l.premiumBps))
	return p.Div(p, big.NewInt(10_000))
}

func (l *fakeLender) RequestLoan(ctx context.Context, receiver common.Address, assets []common.Address, amounts []*big.Int, params []byte) error {
	l.calls++
	if len(assets) != 1 || len(amounts) != 1 {
		return errors.New("single-asset loans only")
	}
	asset, amount := assets[0], amounts[0]
	premium := l.premium(amount)

	snap := l.tokens.snapshot()
	l.tokens.mint(asset, receiver, amount.Int64())

	if l.beforeCallback != nil {
		l.beforeCallback(ctx)
	}

	err := l.eng.OnLoan(ctx, l.addr, receiver, asset, amount, premium, params)
	if err == nil {
		owed := new(big.Int).Add(amount, premium)
		err = l.tokens.spendApproved(asset, receiver, l.addr, owed)
	}
	if err != nil {
		l.tokens.restore(snap)
		return err
	}
	return nil
}

// ---------- misc collaborators ----------

type fakeGas struct {
	price *big.Int
	err   error
}

func (g *fakeGas) GasPrice(context.Context) (*big.Int, error) { return g.price, g.err }

// fakeMeter advances by step between consecutive reads, so each trade
// observes exactly step cost units.
type fakeMeter struct {
	v    uint64
	step uint64
}

func (m *fakeMeter) Consumed() uint64 {
	out := m.v
	m.v += m.step
	return out
}

type fakeOracle struct {
	prices map[common.Address]*big.Int
	err    error
}

func (o *fakeOracle) Price(_ context.Context, asset common.Address) (*big.Int, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.prices[asset], nil
}

type recordingSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *recordingSink) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	s.evs = append(s.evs, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.evs))
	for _, ev := range s.evs {
		out = append(out, ev.Kind)
	}
	return out
}

func (s *recordingSink) last(kind string) (events.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.evs) - 1; i >= 0; i-- {
		if s.evs[i].Kind == kind {
			return s.evs[i], true
		}
	}
	return events.Event{}, false
}

// ---------- harness ----------

type harness struct {
	eng     *Engine
	tokens  *fakeTokens
	lender  *fakeLender
	routerA *fakeRouter
	routerB *fakeRouter
	pairsA  *fakePairSource
	pairsB  *fakePairSource
	gas     *fakeGas
	meter   *fakeMeter
	oracle  *fakeOracle
	sink    *recordingSink
	now     time.Time
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// newHarness builds an engine against a profitable two-venue setup: venue A
// sells the target at 100, venue B buys it back at 102, premium 30 bps.
func newHarness(t *testing.T) *harness {
	t.Helper()

	tokens := newFakeTokens()
	h := &harness{
		tokens:  tokens,
		routerA: &fakeRouter{name: "venue-a", addr: routerAAddr, tokens: tokens, num: 1, den: 100},
		routerB: &fakeRouter{name: "venue-b", addr: routerBAddr, tokens: tokens, num: 102, den: 1},
		gas:     &fakeGas{price: big.NewInt(50)},
		meter:   &fakeMeter{step: 21},
		oracle:  &fakeOracle{prices: map[common.Address]*big.Int{}},
		sink:    &recordingSink{},
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.pairsA = &fakePairSource{pair: &fakePair{
		token0: borrowAsset, token1: targetAsset,
		r0: big.NewInt(1_000_000), r1: big.NewInt(10_000),
	}}
	h.pairsB = &fakePairSource{pair: &fakePair{
		token0: targetAsset, token1: borrowAsset,
		r0: big.NewInt(10_000), r1: big.NewInt(1_000_000),
	}}
	h.lender = &fakeLender{addr: lenderAddr, tokens: tokens, premiumBps: 30}

	eng, err := New(Deps{
		Owner:         ownerAddr,
		Self:          engineAddr,
		Lender:        lenderAddr,
		LenderService: h.lender,
		VenueA:        Venue{Name: "venue-a", Router: h.routerA, Pairs: h.pairsA, Spender: routerAAddr},
		VenueB:        Venue{Name: "venue-b", Router: h.routerB, Pairs: h.pairsB, Spender: routerBAddr},
		Tokens:        tokens,
		Oracle:        h.oracle,
		Gas:           h.gas,
		Meter:         h.meter,
		Sink:          h.sink,
		Log:           zap.NewNop(),
		Config: ArbitrageConfig{
			MaxSlippageBps:  300,
			MinProfitBps:    10,
			MaxGasPrice:     big.NewInt(1_000),
			MaxLoanAmount:   big.NewInt(10_000),
			DynamicSlippage: false,
		},
		MaxDailyLoss: big.NewInt(1_000_000),
		Now:          func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("engine init: %v", err)
	}
	h.eng = eng

	if err := eng.WhitelistAsset(ownerAddr, borrowAsset, big.NewInt(5_000), 0, false); err != nil {
		t.Fatalf("whitelist borrow: %v", err)
	}
	if err := eng.WhitelistAsset(ownerAddr, targetAsset, big.NewInt(5_000), 0, false); err != nil {
		t.Fatalf("whitelist target: %v", err)
	}
	h.lender.eng = eng
	return h
}

func (h *harness) initiate(amount, expected int64) error {
	return h.eng.InitiateArbitrage(context.Background(), ownerAddr,
		borrowAsset, big.NewInt(amount), targetAsset, big.NewInt(expected))
}
