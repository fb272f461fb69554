package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// TokenList resolves mint addresses to symbol and name. SPL mints carry no
// on-chain name, so the list is fetched once from a published token list
// and kept in memory.
type TokenList struct {
	url        string
	httpClient *http.Client
	refresh    time.Duration

	mu       sync.RWMutex
	entries  map[string]domain.TokenMetadata
	loadedAt time.Time
}

type tokenListEntry struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// NewTokenList creates a list backed by url. An empty url yields a list
// that only knows the entries added with Add.
func NewTokenList(url string, timeout time.Duration) *TokenList {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenList{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		refresh:    6 * time.Hour,
		entries:    make(map[string]domain.TokenMetadata),
	}
}

// Add registers a mint statically.
func (l *TokenList) Add(mint string, meta domain.TokenMetadata) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[mint] = meta
}

// Lookup returns the metadata for mint, loading the remote list on first use.
func (l *TokenList) Lookup(ctx context.Context, mint string) (domain.TokenMetadata, bool, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		l.mu.RLock()
		meta, ok := l.entries[mint]
		l.mu.RUnlock()
		if ok {
			return meta, true, nil
		}
		return domain.TokenMetadata{}, false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	meta, ok := l.entries[mint]
	return meta, ok, nil
}

func (l *TokenList) ensureLoaded(ctx context.Context) error {
	if l.url == "" {
		return nil
	}
	l.mu.RLock()
	fresh := !l.loadedAt.IsZero() && time.Since(l.loadedAt) < l.refresh
	l.mu.RUnlock()
	if fresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("create token list request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch token list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch token list: status %d", resp.StatusCode)
	}

	var list []tokenListEntry
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode token list: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range list {
		l.entries[e.Address] = domain.TokenMetadata{Symbol: e.Symbol, Name: e.Name, Decimals: e.Decimals}
	}
	l.loadedAt = time.Now()
	return nil
}
