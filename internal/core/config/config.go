package config

import (
	"time"

	"github.com/vietddude/burnrelay/internal/core/domain"
	redisclient "github.com/vietddude/burnrelay/internal/infra/redis"
	"github.com/vietddude/burnrelay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server         ServerConfig       `yaml:"server"`
	Logging        LoggingConfig      `yaml:"logging"`
	Database       postgres.Config    `yaml:"database"`
	Redis          redisclient.Config `yaml:"redis"`
	NATS           NATSConfig         `yaml:"nats"`
	Admin          AdminConfig        `yaml:"admin"`
	Chains         []ChainConfig      `yaml:"chains"`
	ProtocolTokens []TokenRef         `yaml:"protocol_tokens"`
	Targets        []TargetConfig     `yaml:"targets"`
	Allocation     AllocationConfig   `yaml:"allocation"`
	Quote          QuoteConfig        `yaml:"quote"`
	Bridge         BridgeConfig       `yaml:"bridge"`
	Signer         SignerConfig       `yaml:"signer"`
	Classifier     ClassifierConfig   `yaml:"classifier"`
	Execution      ExecutionConfig    `yaml:"execution"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins is checked on websocket upgrades. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NATSConfig configures the JetStream event publisher. Empty URL disables it.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// AdminConfig holds admin session settings.
type AdminConfig struct {
	TOTPSecret string        `yaml:"totp_secret"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Issuer     string        `yaml:"issuer"`
	// ContestActive is the initial state of the contest toggle.
	ContestActive bool `yaml:"contest_active"`
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	ID          domain.ChainID     `yaml:"id"`
	Family      domain.ChainFamily `yaml:"family"`
	Name        string             `yaml:"name"`
	NumericID   string             `yaml:"numeric_id"`
	Currency    string             `yaml:"currency"`
	Explorer    string             `yaml:"explorer"`
	BurnAddress string             `yaml:"burn_address"`
	// ReferenceToken is the asset used by the liquidity check.
	ReferenceToken string `yaml:"reference_token"`
	// BridgeAsset is what cross-chain hops deliver on this chain before
	// the final swap into the target.
	BridgeAsset     string           `yaml:"bridge_asset"`
	PollInterval    time.Duration    `yaml:"poll_interval"`
	MaxPollAttempts int              `yaml:"max_poll_attempts"`
	Confirmations   uint64           `yaml:"confirmations"`  // evm only
	Commitment      string           `yaml:"commitment"`     // solana only
	TokenListURL    string           `yaml:"token_list_url"` // solana only
	Providers       []ProviderConfig `yaml:"providers"`
}

// Info converts the chain config into its public description.
func (c ChainConfig) Info() domain.ChainInfo {
	return domain.ChainInfo{
		ID:          c.ID,
		Name:        c.Name,
		Family:      c.Family,
		NumericID:   c.NumericID,
		Currency:    c.Currency,
		Explorer:    c.Explorer,
		BurnAddress: c.BurnAddress,
	}
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Priority int           `yaml:"priority"`
}

// TokenRef names a token on one chain.
type TokenRef struct {
	Chain   domain.ChainID `yaml:"chain"`
	Address string         `yaml:"address"`
	Symbol  string         `yaml:"symbol"`
}

// TargetConfig describes a swap target asset (DRB, cbBTC).
type TargetConfig struct {
	Symbol       string                    `yaml:"symbol"`
	OptimalChain domain.ChainID            `yaml:"optimal_chain"`
	Tokens       map[domain.ChainID]string `yaml:"tokens"`
	Recipients   map[domain.ChainID]string `yaml:"recipients"`
	Decimals     int32                     `yaml:"decimals"`
}

// LegConfig is one row of an allocation table.
type LegConfig struct {
	Name      string                 `yaml:"name"`
	Kind      domain.DestinationKind `yaml:"kind"`
	WeightBps int64                  `yaml:"weight_bps"`
	Target    string                 `yaml:"target"` // swap legs
	// Recipients maps chain to wallet for forward and pool legs.
	Recipients map[domain.ChainID]string `yaml:"recipients"`
}

// AllocationConfig holds the basis-point tables per mode.
type AllocationConfig struct {
	MaxAmount string                                `yaml:"max_amount"`
	Tables    map[domain.AllocationMode][]LegConfig `yaml:"tables"`
}

// RetryConfig bounds retries against an external service.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// QuoteConfig configures the swap quote providers.
type QuoteConfig struct {
	LiFiURL        string        `yaml:"lifi_url"`
	JupiterURL     string        `yaml:"jupiter_url"`
	APIKey         string        `yaml:"api_key"`
	SlippageBps    int64         `yaml:"slippage_bps"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// BridgeConfig configures the bridge provider and the advisory estimates.
type BridgeConfig struct {
	URL             string         `yaml:"url"`
	APIKey          string         `yaml:"api_key"`
	SlippageBps     int64          `yaml:"slippage_bps"`
	RequestTimeout  time.Duration  `yaml:"request_timeout"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	MaxPollAttempts int            `yaml:"max_poll_attempts"`
	Estimates       EstimateConfig `yaml:"estimates"`
	Retry           RetryConfig    `yaml:"retry"`
}

// EstimateRange is a min/max pair for one route action.
type EstimateRange struct {
	MinTime time.Duration `yaml:"min_time"`
	MaxTime time.Duration `yaml:"max_time"`
	MinCost string        `yaml:"min_cost"`
	MaxCost string        `yaml:"max_cost"`
}

// EstimateConfig holds the per-action route estimates.
type EstimateConfig struct {
	Burn   EstimateRange `yaml:"burn"`
	Swap   EstimateRange `yaml:"swap"`
	Bridge EstimateRange `yaml:"bridge"`
}

// SignerConfig configures the external signer.
type SignerConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// ClassifierConfig configures token classification.
type ClassifierConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheBackend   string        `yaml:"cache_backend"` // memory, redis
	DenySymbols    []string      `yaml:"deny_symbols"`
	DenyAddresses  []TokenRef    `yaml:"deny_addresses"`
	NonBurnable    []TokenRef    `yaml:"non_burnable"`
	CheckLiquidity bool          `yaml:"check_liquidity"`
	SimulateBurn   bool          `yaml:"simulate_burn"`
}

// ExecutionConfig configures plan execution.
type ExecutionConfig struct {
	StoreBackend   string        `yaml:"store_backend"` // memory, postgres
	LeaseBackend   string        `yaml:"lease_backend"` // memory, redis
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	ResumeInterval time.Duration `yaml:"resume_interval"`
	ResumeGrace    time.Duration `yaml:"resume_grace"`
	// ConflictRetries bounds optimistic-lock retries in the store.
	ConflictRetries int `yaml:"conflict_retries"`
}

// Chain returns the config of the given chain.
func (c *AppConfig) Chain(id domain.ChainID) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// Target returns the config of the given target symbol.
func (c *AppConfig) Target(symbol string) (TargetConfig, bool) {
	for _, t := range c.Targets {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TargetConfig{}, false
}
