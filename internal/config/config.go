package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AssetCfg struct {
	Address        string `yaml:"address"`
	MaxLoanAmount  string `yaml:"max_loan_amount"`
	SlippageBps    uint64 `yaml:"slippage_bps"`
	RequiresOracle bool   `yaml:"requires_oracle"`
}

type VenueCfg struct {
	Name   string `yaml:"name"`
	Router string `yaml:"router"`
}

type Config struct {
	DryRun bool `yaml:"dry_run"`

	Chain struct {
		RPCHTTP  string `yaml:"rpc_http"`
		WalletPK string `yaml:"wallet_pk"`
		GasLimit uint64 `yaml:"gas_limit"`
	} `yaml:"chain"`

	Lender struct {
		Pool string `yaml:"pool"`
	} `yaml:"lender"`

	Venues struct {
		A VenueCfg `yaml:"a"`
		B VenueCfg `yaml:"b"`
	} `yaml:"venues"`

	Multicall string `yaml:"multicall"`

	Oracle struct {
		Feeds map[string]string `yaml:"feeds"` // asset address -> aggregator address
	} `yaml:"oracle"`

	Risk struct {
		MaxSlippageBps  uint64 `yaml:"max_slippage_bps"`
		MinProfitBps    uint64 `yaml:"min_profit_bps"`
		MaxGasPriceGwei uint64 `yaml:"max_gas_price_gwei"`
		MaxLoanAmount   string `yaml:"max_loan_amount"`
		DynamicSlippage bool   `yaml:"dynamic_slippage"`
		MaxDailyLoss    string `yaml:"max_daily_loss"`
	} `yaml:"risk"`

	Assets []AssetCfg `yaml:"assets"`

	Trade struct {
		BorrowAsset    string `yaml:"borrow_asset"`
		TargetAsset    string `yaml:"target_asset"`
		Amount         string `yaml:"amount"`
		ExpectedProfit string `yaml:"expected_profit"`
		IntervalMs     int    `yaml:"interval_ms"`
	} `yaml:"trade"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 1_200_000
	}
	if c.Risk.MaxSlippageBps == 0 {
		c.Risk.MaxSlippageBps = 300
	}
	if c.Risk.MinProfitBps == 0 {
		c.Risk.MinProfitBps = 10
	}
	if c.Risk.MaxGasPriceGwei == 0 {
		c.Risk.MaxGasPriceGwei = 150
	}
	if c.Trade.IntervalMs == 0 {
		c.Trade.IntervalMs = 15_000
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "flash:events"
	}
	if c.Venues.A.Name == "" {
		c.Venues.A.Name = "venue-a"
	}
	if c.Venues.B.Name == "" {
		c.Venues.B.Name = "venue-b"
	}
	return &c, nil
}

// MaxGasPriceWei converts the configured gwei ceiling to wei.
func (c *Config) MaxGasPriceWei() *big.Int {
	gwei := new(big.Int).SetUint64(c.Risk.MaxGasPriceGwei)
	return gwei.Mul(gwei, big.NewInt(1_000_000_000))
}

func (c *Config) TradeInterval() time.Duration {
	return time.Duration(c.Trade.IntervalMs) * time.Millisecond
}

// ParseAmount parses a decimal wei string. Empty strings parse to zero.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return v, nil
}
