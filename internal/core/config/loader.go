package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Default wallets receiving swapped and forwarded shares.
const (
	DefaultGrokWallet      = "0x742d35Cc6634C0532925a3b8D0d67c58C95B4b1a"
	DefaultTeamWallet      = "0x742d35Cc6634C0532925a3b8D0d67c58C95B4b1b"
	DefaultCommunityWallet = "0x742d35Cc6634C0532925a3b8D0d67c58C95B4b1c"
)

// chainAssets holds the default reference token and bridge asset per chain.
var chainAssets = map[domain.ChainID][2]string{
	domain.ChainEthereum: {"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
	domain.ChainBase:     {"0x4200000000000000000000000000000000000006", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
	domain.ChainPolygon:  {"0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"},
	domain.ChainArbitrum: {"0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"},
	domain.ChainSolana:   {"So11111111111111111111111111111111111111112", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
}

// DefaultDenySymbols are base assets that are never accepted for burning.
var DefaultDenySymbols = []string{"eth", "weth", "btc", "wbtc", "cbbtc", "xrp", "sui", "sol", "solana"}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML configuration.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}

	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "BURNRELAY"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "burnrelay.burn"
	}
	if cfg.NATS.Timeout == 0 {
		cfg.NATS.Timeout = 5 * time.Second
	}
	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = 10
	}

	if cfg.Admin.SessionTTL == 0 {
		cfg.Admin.SessionTTL = 12 * time.Hour
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = "burnrelay"
	}

	for i := range cfg.Chains {
		applyChainDefaults(&cfg.Chains[i])
	}

	if len(cfg.Targets) == 0 {
		cfg.Targets = defaultTargets()
	}
	if len(cfg.Allocation.Tables) == 0 {
		cfg.Allocation.Tables = DefaultTables()
	}
	if _, ok := cfg.Allocation.Tables[domain.ModeNonBurnable]; !ok {
		if std, ok := cfg.Allocation.Tables[domain.ModeStandard]; ok {
			cfg.Allocation.Tables[domain.ModeNonBurnable] = FoldBurnLeg(std)
		}
	}

	if cfg.Quote.LiFiURL == "" {
		cfg.Quote.LiFiURL = "https://li.quest"
	}
	if cfg.Quote.JupiterURL == "" {
		cfg.Quote.JupiterURL = "https://quote-api.jup.ag"
	}
	if cfg.Quote.SlippageBps == 0 {
		cfg.Quote.SlippageBps = 300
	}
	if cfg.Quote.StaleAfter == 0 {
		cfg.Quote.StaleAfter = 60 * time.Second
	}
	if cfg.Quote.RequestTimeout == 0 {
		cfg.Quote.RequestTimeout = 10 * time.Second
	}
	applyRetryDefaults(&cfg.Quote.Retry)

	if cfg.Bridge.URL == "" {
		cfg.Bridge.URL = cfg.Quote.LiFiURL
	}
	if cfg.Bridge.SlippageBps == 0 {
		cfg.Bridge.SlippageBps = 300
	}
	if cfg.Bridge.RequestTimeout == 0 {
		cfg.Bridge.RequestTimeout = 15 * time.Second
	}
	if cfg.Bridge.PollInterval == 0 {
		cfg.Bridge.PollInterval = 30 * time.Second
	}
	if cfg.Bridge.MaxPollAttempts == 0 {
		cfg.Bridge.MaxPollAttempts = 60
	}
	applyEstimateDefaults(&cfg.Bridge.Estimates)
	applyRetryDefaults(&cfg.Bridge.Retry)

	if cfg.Signer.RequestTimeout == 0 {
		cfg.Signer.RequestTimeout = 30 * time.Second
	}
	applyRetryDefaults(&cfg.Signer.Retry)

	if cfg.Classifier.CacheTTL == 0 {
		cfg.Classifier.CacheTTL = 5 * time.Minute
	}
	if cfg.Classifier.CacheBackend == "" {
		cfg.Classifier.CacheBackend = "memory"
	}
	if len(cfg.Classifier.DenySymbols) == 0 {
		cfg.Classifier.DenySymbols = DefaultDenySymbols
	}

	if cfg.Execution.StoreBackend == "" {
		cfg.Execution.StoreBackend = "memory"
		if cfg.Database.URL != "" {
			cfg.Execution.StoreBackend = "postgres"
		}
	}
	if cfg.Execution.LeaseBackend == "" {
		cfg.Execution.LeaseBackend = "memory"
	}
	if cfg.Execution.LeaseTTL == 0 {
		cfg.Execution.LeaseTTL = 2 * time.Minute
	}
	if cfg.Execution.MaxConcurrency == 0 {
		cfg.Execution.MaxConcurrency = 4
	}
	if cfg.Execution.ResumeInterval == 0 {
		cfg.Execution.ResumeInterval = time.Minute
	}
	if cfg.Execution.ResumeGrace == 0 {
		cfg.Execution.ResumeGrace = 5 * time.Minute
	}
	if cfg.Execution.ConflictRetries == 0 {
		cfg.Execution.ConflictRetries = 20
	}
}

func applyChainDefaults(ch *ChainConfig) {
	if known, ok := domain.KnownChains[ch.ID]; ok {
		if ch.Family == "" {
			ch.Family = known.Family
		}
		if ch.Name == "" {
			ch.Name = known.Name
		}
		if ch.NumericID == "" {
			ch.NumericID = known.NumericID
		}
		if ch.Currency == "" {
			ch.Currency = known.Currency
		}
		if ch.Explorer == "" {
			ch.Explorer = known.Explorer
		}
	}
	if assets, ok := chainAssets[ch.ID]; ok {
		if ch.ReferenceToken == "" {
			ch.ReferenceToken = assets[0]
		}
		if ch.BridgeAsset == "" {
			ch.BridgeAsset = assets[1]
		}
	}
	if ch.BurnAddress == "" {
		switch ch.Family {
		case domain.FamilyEVM:
			ch.BurnAddress = domain.EVMBurnAddress
		case domain.FamilySolana:
			ch.BurnAddress = domain.SolanaBurnAddress
		}
	}

	switch ch.Family {
	case domain.FamilySolana:
		if ch.PollInterval == 0 {
			ch.PollInterval = 2 * time.Second
		}
		if ch.MaxPollAttempts == 0 {
			ch.MaxPollAttempts = 45
		}
		if ch.Commitment == "" {
			ch.Commitment = "confirmed"
		}
	default:
		if ch.PollInterval == 0 {
			ch.PollInterval = 5 * time.Second
		}
		if ch.MaxPollAttempts == 0 {
			ch.MaxPollAttempts = 60
		}
		if ch.Confirmations == 0 {
			ch.Confirmations = 1
		}
	}

	for i := range ch.Providers {
		if ch.Providers[i].Timeout == 0 {
			ch.Providers[i].Timeout = 10 * time.Second
		}
		if ch.Providers[i].Name == "" {
			ch.Providers[i].Name = fmt.Sprintf("%s-%d", ch.ID, i)
		}
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = 500 * time.Millisecond
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 10 * time.Second
	}
}

func applyEstimateDefaults(e *EstimateConfig) {
	fill := func(r *EstimateRange, minT, maxT time.Duration, minC, maxC string) {
		if r.MinTime == 0 && r.MaxTime == 0 {
			r.MinTime, r.MaxTime = minT, maxT
		}
		if r.MinCost == "" && r.MaxCost == "" {
			r.MinCost, r.MaxCost = minC, maxC
		}
	}
	fill(&e.Burn, 30*time.Second, 30*time.Second, "0", "0")
	fill(&e.Swap, time.Minute, 2*time.Minute, "5", "15")
	fill(&e.Bridge, 5*time.Minute, 15*time.Minute, "15", "50")
}

func defaultTargets() []TargetConfig {
	return []TargetConfig{
		{
			Symbol:       "DRB",
			OptimalChain: domain.ChainBase,
			Decimals:     18,
			Tokens: map[domain.ChainID]string{
				domain.ChainBase: "0x3ec2156D4c0A9CBdAB4a016633b7BcF6a8d68Ea2",
			},
			Recipients: map[domain.ChainID]string{
				domain.ChainBase: DefaultGrokWallet,
			},
		},
		{
			Symbol:       "CBBTC",
			OptimalChain: domain.ChainEthereum,
			Decimals:     8,
			Tokens: map[domain.ChainID]string{
				domain.ChainEthereum: "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf",
				domain.ChainBase:     "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf",
				domain.ChainSolana:   "cbbtcf3aa214zXHbiAZQwf4122FBYbraNdFqgw4iMij",
			},
			Recipients: map[domain.ChainID]string{
				domain.ChainEthereum: DefaultCommunityWallet,
				domain.ChainBase:     DefaultCommunityWallet,
			},
		},
	}
}

func evmRecipient(addr string) map[domain.ChainID]string {
	return map[domain.ChainID]string{
		domain.ChainEthereum: addr,
		domain.ChainBase:     addr,
		domain.ChainPolygon:  addr,
		domain.ChainArbitrum: addr,
	}
}

// DefaultTables returns the built-in allocation tables.
func DefaultTables() map[domain.AllocationMode][]LegConfig {
	standard := []LegConfig{
		{Name: "burn", Kind: domain.DestBurn, WeightBps: 8800},
		{Name: "swap_drb", Kind: domain.DestSwap, WeightBps: 600, Target: "DRB"},
		{Name: "swap_cbbtc", Kind: domain.DestSwap, WeightBps: 600, Target: "CBBTC"},
	}
	return map[domain.AllocationMode][]LegConfig{
		domain.ModeStandard: standard,
		domain.ModeContest: {
			{Name: "burn", Kind: domain.DestBurn, WeightBps: 8800},
			{Name: "pool", Kind: domain.DestPool, WeightBps: 1200, Recipients: evmRecipient(DefaultCommunityWallet)},
		},
		domain.ModeDrbDirect: {
			{Name: "drb_grok", Kind: domain.DestForward, WeightBps: 7400, Recipients: evmRecipient(DefaultGrokWallet)},
			{Name: "drb_team", Kind: domain.DestForward, WeightBps: 1000, Recipients: evmRecipient(DefaultTeamWallet)},
			{Name: "drb_community", Kind: domain.DestForward, WeightBps: 1600, Recipients: evmRecipient(DefaultCommunityWallet)},
		},
		domain.ModeNonBurnable: FoldBurnLeg(standard),
	}
}

// FoldBurnLeg derives the non-burnable table from a standard one by moving
// every burn weight onto the first swap leg.
func FoldBurnLeg(standard []LegConfig) []LegConfig {
	var burnWeight int64
	out := make([]LegConfig, 0, len(standard))
	for _, leg := range standard {
		if leg.Kind == domain.DestBurn {
			burnWeight += leg.WeightBps
			continue
		}
		out = append(out, leg)
	}
	for i := range out {
		if out[i].Kind == domain.DestSwap {
			out[i].WeightBps += burnWeight
			return out
		}
	}
	return out
}
