package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/littlekickoffkittie/flash/internal/venue"
)

const factoryABI = `[
 {"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABI = `[
 {"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// PairSource resolves pools through a venue's factory. Pool addresses are
// cached; reserve state never is.
type PairSource struct {
	c       *Client
	mc      *Multicall // optional; batches pair reads when set
	factory common.Address
	fabi    abi.ABI
	pabi    abi.ABI

	mu    sync.RWMutex
	pools map[[2]common.Address]common.Address
}

func NewPairSource(c *Client, factory common.Address, mc *Multicall) (*PairSource, error) {
	fabi, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	pabi, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	return &PairSource{
		c:       c,
		mc:      mc,
		factory: factory,
		fabi:    fabi,
		pabi:    pabi,
		pools:   make(map[[2]common.Address]common.Address, 8),
	}, nil
}

func (s *PairSource) Pair(ctx context.Context, tokenA, tokenB common.Address) (venue.Pair, bool, error) {
	key := [2]common.Address{tokenA, tokenB}
	s.mu.RLock()
	addr, ok := s.pools[key]
	s.mu.RUnlock()

	if !ok {
		data, err := s.fabi.Pack("getPair", tokenA, tokenB)
		if err != nil {
			return nil, false, fmt.Errorf("pack getPair: %w", err)
		}
		raw, err := s.c.call(ctx, s.factory, data)
		if err != nil {
			return nil, false, fmt.Errorf("call getPair: %w", err)
		}
		outs, err := s.fabi.Methods["getPair"].Outputs.Unpack(raw)
		if err != nil || len(outs) == 0 {
			return nil, false, errors.New("decode getPair")
		}
		addr = outs[0].(common.Address)
		if addr != (common.Address{}) {
			s.mu.Lock()
			s.pools[key] = addr
			s.mu.Unlock()
		}
	}
	if addr == (common.Address{}) {
		return nil, false, nil
	}
	return &pair{src: s, addr: addr}, true, nil
}

type pair struct {
	src  *PairSource
	addr common.Address
}

func (p *pair) Reserves(ctx context.Context) (*big.Int, *big.Int, uint32, error) {
	data, _ := p.src.pabi.Pack("getReserves")
	raw, err := p.readOne(ctx, data)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("getReserves: %w", err)
	}
	outs, err := p.src.pabi.Methods["getReserves"].Outputs.Unpack(raw)
	if err != nil || len(outs) < 3 {
		return nil, nil, 0, errors.New("decode getReserves")
	}
	return outs[0].(*big.Int), outs[1].(*big.Int), outs[2].(uint32), nil
}

func (p *pair) Token0(ctx context.Context) (common.Address, error) { return p.token(ctx, "token0") }
func (p *pair) Token1(ctx context.Context) (common.Address, error) { return p.token(ctx, "token1") }

func (p *pair) token(ctx context.Context, method string) (common.Address, error) {
	data, _ := p.src.pabi.Pack(method)
	raw, err := p.readOne(ctx, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	outs, err := p.src.pabi.Methods[method].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return common.Address{}, fmt.Errorf("decode %s", method)
	}
	return outs[0].(common.Address), nil
}

// readOne routes through the multicall aggregator when one is configured so
// repeated pair reads share its batching path, and falls back to a direct
// eth_call otherwise.
func (p *pair) readOne(ctx context.Context, data []byte) ([]byte, error) {
	if p.src.mc != nil {
		res, err := p.src.mc.Aggregate(ctx, []mcCall{{Target: p.addr, CallData: data}})
		if err != nil {
			return nil, err
		}
		return res[0], nil
	}
	return p.src.c.call(ctx, p.addr, data)
}
