package burn

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

const (
	statsPageSize  = 500
	leaderboardLen = 10
	recentLen      = 10
	trendingWindow = 24 * time.Hour
)

type TokenStats struct {
	Chain  domain.ChainID `json:"chain"`
	Token  string         `json:"token"`
	Symbol string         `json:"symbol"`
	Burns  int            `json:"burns"`
	Volume string         `json:"volume"`
	Burned string         `json:"burned"`
}

type TrendingToken struct {
	Chain  domain.ChainID `json:"chain"`
	Token  string         `json:"token"`
	Symbol string         `json:"symbol"`
	Burns  int            `json:"burns"`
}

type WalletStats struct {
	Wallet      string `json:"wallet"`
	TotalBurned string `json:"total_burned"`
	Burns       int    `json:"burns"`
}

type RecentBurn struct {
	ID        string            `json:"id"`
	Wallet    string            `json:"wallet"`
	Chain     domain.ChainID    `json:"chain"`
	Symbol    string            `json:"symbol"`
	Amount    string            `json:"amount"`
	Status    domain.PlanStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// Stats summarises every burn record.
type Stats struct {
	TotalRecords     int             `json:"total_records"`
	CompletedRecords int             `json:"completed_records"`
	Tokens           []TokenStats    `json:"tokens"`
	Trending         []TrendingToken `json:"trending"`
	TopWallets       []WalletStats   `json:"top_wallets"`
	Recent           []RecentBurn    `json:"recent"`
}

// CommunityStats is the public leaderboard, built from completed burns only.
type CommunityStats struct {
	TotalBurns        int                        `json:"total_burns"`
	ActiveWallets     int                        `json:"active_wallets"`
	ChainDistribution map[domain.ChainID]float64 `json:"chain_distribution"`
	TopBurners        []WalletStats              `json:"top_burners"`
	RecentBurns       []RecentBurn               `json:"recent_burns"`
}

// MaskWallet shortens an address to its first six and last four characters.
func MaskWallet(w string) string {
	if len(w) <= 10 {
		return w
	}
	return w[:6] + "..." + w[len(w)-4:]
}

// Stats recomputes the dashboard from the store.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	recs, err := s.listAll(ctx, storage.ListFilter{})
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(recs, s.clock.Now()), nil
}

// CommunityStats recomputes the leaderboard from the store.
func (s *Service) CommunityStats(ctx context.Context) (CommunityStats, error) {
	recs, err := s.listAll(ctx, storage.ListFilter{Statuses: []domain.PlanStatus{domain.PlanCompleted}})
	if err != nil {
		return CommunityStats{}, err
	}
	return ComputeCommunityStats(recs), nil
}

func (s *Service) listAll(ctx context.Context, f storage.ListFilter) ([]*domain.BurnRecord, error) {
	var all []*domain.BurnRecord
	for offset := 0; ; offset += statsPageSize {
		page, err := s.store.List(ctx, f, statsPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < statsPageSize {
			return all, nil
		}
	}
}

func tokenKey(r *domain.BurnRecord) string {
	return string(r.SourceChain) + ":" + strings.ToLower(r.TokenAddress)
}

func walletKey(w string) string {
	if strings.HasPrefix(w, "0x") {
		return strings.ToLower(w)
	}
	return w
}

type tokenAgg struct {
	stats  TokenStats
	volume decimal.Decimal
	burned decimal.Decimal
	recent int
}

type walletAgg struct {
	wallet string
	burned decimal.Decimal
	burns  int
}

// ComputeStats aggregates records; recs are expected newest first.
func ComputeStats(recs []*domain.BurnRecord, now time.Time) Stats {
	out := Stats{TotalRecords: len(recs)}
	tokens := map[string]*tokenAgg{}
	var tokenOrder []string
	wallets := map[string]*walletAgg{}

	for _, r := range recs {
		if r.Status == domain.PlanCompleted {
			out.CompletedRecords++
		}
		k := tokenKey(r)
		t, ok := tokens[k]
		if !ok {
			t = &tokenAgg{stats: TokenStats{Chain: r.SourceChain, Token: r.TokenAddress, Symbol: r.TokenSymbol}}
			tokens[k] = t
			tokenOrder = append(tokenOrder, k)
		}
		burned := r.BurnedAmount().ToDecimal(r.TokenDecimals)
		t.stats.Burns++
		t.volume = t.volume.Add(r.Amount.ToDecimal(r.TokenDecimals))
		t.burned = t.burned.Add(burned)
		if now.Sub(r.CreatedAt) <= trendingWindow {
			t.recent++
		}

		w, ok := wallets[walletKey(r.WalletAddress)]
		if !ok {
			w = &walletAgg{wallet: r.WalletAddress}
			wallets[walletKey(r.WalletAddress)] = w
		}
		w.burned = w.burned.Add(burned)
		w.burns++
	}

	for _, k := range tokenOrder {
		t := tokens[k]
		t.stats.Volume = t.volume.String()
		t.stats.Burned = t.burned.String()
		out.Tokens = append(out.Tokens, t.stats)
		if t.recent > 0 {
			out.Trending = append(out.Trending, TrendingToken{Chain: t.stats.Chain, Token: t.stats.Token, Symbol: t.stats.Symbol, Burns: t.recent})
		}
	}
	sort.SliceStable(out.Trending, func(i, j int) bool { return out.Trending[i].Burns > out.Trending[j].Burns })
	if len(out.Trending) > leaderboardLen {
		out.Trending = out.Trending[:leaderboardLen]
	}

	out.TopWallets = topWallets(wallets)
	out.Recent = recent(recs)
	return out
}

// ComputeCommunityStats builds the leaderboard from completed records.
func ComputeCommunityStats(recs []*domain.BurnRecord) CommunityStats {
	out := CommunityStats{ChainDistribution: map[domain.ChainID]float64{}}
	wallets := map[string]*walletAgg{}
	perChain := map[domain.ChainID]int{}

	for _, r := range recs {
		if r.Status != domain.PlanCompleted {
			continue
		}
		out.TotalBurns++
		perChain[r.SourceChain]++
		k := walletKey(r.WalletAddress)
		w, ok := wallets[k]
		if !ok {
			w = &walletAgg{wallet: r.WalletAddress}
			wallets[k] = w
		}
		w.burned = w.burned.Add(r.BurnedAmount().ToDecimal(r.TokenDecimals))
		w.burns++
	}
	out.ActiveWallets = len(wallets)
	for c, n := range perChain {
		pct, _ := decimal.NewFromInt(int64(n)).Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(out.TotalBurns))).Round(2).Float64()
		out.ChainDistribution[c] = pct
	}
	out.TopBurners = topWallets(wallets)

	var completed []*domain.BurnRecord
	for _, r := range recs {
		if r.Status == domain.PlanCompleted {
			completed = append(completed, r)
		}
	}
	out.RecentBurns = recent(completed)
	return out
}

func topWallets(wallets map[string]*walletAgg) []WalletStats {
	list := make([]*walletAgg, 0, len(wallets))
	for _, w := range wallets {
		list = append(list, w)
	}
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].burned.Cmp(list[j].burned); c != 0 {
			return c > 0
		}
		return list[i].wallet < list[j].wallet
	})
	if len(list) > leaderboardLen {
		list = list[:leaderboardLen]
	}
	out := make([]WalletStats, 0, len(list))
	for _, w := range list {
		out = append(out, WalletStats{Wallet: MaskWallet(w.wallet), TotalBurned: w.burned.String(), Burns: w.burns})
	}
	return out
}

func recent(recs []*domain.BurnRecord) []RecentBurn {
	n := min(len(recs), recentLen)
	out := make([]RecentBurn, 0, n)
	for _, r := range recs[:n] {
		out = append(out, RecentBurn{
			ID:        r.ID,
			Wallet:    MaskWallet(r.WalletAddress),
			Chain:     r.SourceChain,
			Symbol:    r.TokenSymbol,
			Amount:    r.Amount.ToDecimal(r.TokenDecimals).String(),
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}
