package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// TotalBps is the weight every allocation table must sum to.
const TotalBps = 10000

// Validate checks the configuration for errors that must stop startup.
func Validate(cfg *AppConfig) error {
	var errs []error

	if len(cfg.Chains) == 0 {
		errs = append(errs, errors.New("no chains configured"))
	}
	families := make(map[domain.ChainID]domain.ChainFamily, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		if ch.ID == "" {
			errs = append(errs, errors.New("chain with empty id"))
			continue
		}
		if _, dup := families[ch.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate chain %s", ch.ID))
			continue
		}
		if ch.Family != domain.FamilyEVM && ch.Family != domain.FamilySolana {
			errs = append(errs, fmt.Errorf("chain %s: unknown family %q", ch.ID, ch.Family))
			continue
		}
		families[ch.ID] = ch.Family
		if len(ch.Providers) == 0 {
			errs = append(errs, fmt.Errorf("chain %s: no rpc providers", ch.ID))
		}
		if err := ValidAddress(ch.Family, ch.BurnAddress); err != nil {
			errs = append(errs, fmt.Errorf("chain %s: burn address: %w", ch.ID, err))
		}
	}

	checkAddr := func(what string, chain domain.ChainID, addr string) {
		fam, ok := families[chain]
		if !ok {
			// Entries for chains that are not enabled are ignored.
			return
		}
		if err := ValidAddress(fam, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s on %s: %w", what, chain, err))
		}
	}

	for _, ch := range cfg.Chains {
		if ch.ReferenceToken != "" {
			checkAddr("reference token", ch.ID, ch.ReferenceToken)
		}
		if ch.BridgeAsset != "" {
			checkAddr("bridge asset", ch.ID, ch.BridgeAsset)
		}
	}
	for _, t := range cfg.ProtocolTokens {
		checkAddr("protocol token "+t.Symbol, t.Chain, t.Address)
	}
	for _, t := range cfg.Classifier.DenyAddresses {
		checkAddr("denied token", t.Chain, t.Address)
	}
	for _, t := range cfg.Classifier.NonBurnable {
		checkAddr("non-burnable token", t.Chain, t.Address)
	}

	targets := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if t.Symbol == "" {
			errs = append(errs, errors.New("target with empty symbol"))
			continue
		}
		targets[t.Symbol] = true
		for chain, addr := range t.Tokens {
			checkAddr("target "+t.Symbol+" token", chain, addr)
		}
		for chain, addr := range t.Recipients {
			checkAddr("target "+t.Symbol+" recipient", chain, addr)
		}
	}

	for _, mode := range domain.AllModes {
		legs, ok := cfg.Allocation.Tables[mode]
		if !ok {
			errs = append(errs, fmt.Errorf("allocation table %s missing", mode))
			continue
		}
		if err := ValidateTable(legs); err != nil {
			errs = append(errs, fmt.Errorf("allocation table %s: %w", mode, err))
			continue
		}
		for _, leg := range legs {
			if leg.Kind == domain.DestSwap && !targets[leg.Target] {
				errs = append(errs, fmt.Errorf("allocation table %s: leg %s: unknown target %q", mode, leg.Name, leg.Target))
			}
			for chain, addr := range leg.Recipients {
				checkAddr("leg "+leg.Name+" recipient", chain, addr)
			}
		}
	}

	if cfg.Allocation.MaxAmount != "" {
		if _, err := domain.ParseAmount(cfg.Allocation.MaxAmount); err != nil {
			errs = append(errs, fmt.Errorf("allocation max_amount: %w", err))
		}
	}
	if cfg.Quote.SlippageBps < 0 || cfg.Quote.SlippageBps >= TotalBps {
		errs = append(errs, fmt.Errorf("quote slippage_bps %d out of range", cfg.Quote.SlippageBps))
	}

	switch cfg.Execution.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("postgres store requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", cfg.Execution.StoreBackend))
	}
	for name, backend := range map[string]string{
		"lease":      cfg.Execution.LeaseBackend,
		"classifier": cfg.Classifier.CacheBackend,
	} {
		switch backend {
		case "memory":
		case "redis":
			if cfg.Redis.URL == "" {
				errs = append(errs, fmt.Errorf("redis %s backend requires redis.url", name))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown %s backend %q", name, backend))
		}
	}

	return errors.Join(errs...)
}

// ValidateTable checks that a table has unique leg names, positive weights
// and sums to exactly TotalBps.
func ValidateTable(legs []LegConfig) error {
	if len(legs) == 0 {
		return errors.New("no legs")
	}
	var sum int64
	seen := make(map[string]bool, len(legs))
	for _, leg := range legs {
		if leg.Name == "" {
			return errors.New("leg with empty name")
		}
		if seen[leg.Name] {
			return fmt.Errorf("duplicate leg %s", leg.Name)
		}
		seen[leg.Name] = true
		if leg.WeightBps <= 0 {
			return fmt.Errorf("leg %s: weight must be positive", leg.Name)
		}
		switch leg.Kind {
		case domain.DestBurn, domain.DestSwap, domain.DestForward, domain.DestPool:
		default:
			return fmt.Errorf("leg %s: unknown kind %q", leg.Name, leg.Kind)
		}
		sum += leg.WeightBps
	}
	if sum != TotalBps {
		return fmt.Errorf("weights sum to %d bps, want %d", sum, TotalBps)
	}
	return nil
}

// ValidAddress checks an address against the chain family's format.
func ValidAddress(family domain.ChainFamily, addr string) error {
	addr = strings.TrimSpace(addr)
	switch family {
	case domain.FamilyEVM:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("malformed evm address %q", addr)
		}
	case domain.FamilySolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("malformed solana address %q: %w", addr, err)
		}
	default:
		return fmt.Errorf("unknown chain family %q", family)
	}
	return nil
}
