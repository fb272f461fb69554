package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vietddude/burnrelay/internal/burn"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type legView struct {
	Name    string                 `json:"name"`
	Kind    domain.DestinationKind `json:"kind"`
	Percent float64                `json:"percent"`
	Target  string                 `json:"target,omitempty"`
}

type targetView struct {
	Symbol       string                    `json:"symbol"`
	OptimalChain domain.ChainID            `json:"optimal_chain"`
	Tokens       map[domain.ChainID]string `json:"tokens"`
}

type configView struct {
	BurnAddresses map[domain.ChainID]string           `json:"burn_addresses"`
	Targets       []targetView                        `json:"targets"`
	Allocations   map[domain.AllocationMode][]legView `json:"allocations"`
	ContestActive bool                                `json:"contest_active"`
}

func (s *Server) getConfig(c *gin.Context) {
	out := configView{
		BurnAddresses: make(map[domain.ChainID]string, len(s.cfg.Chains)),
		Allocations:   make(map[domain.AllocationMode][]legView, len(s.cfg.Allocation.Tables)),
		ContestActive: s.burns.ContestActive(),
	}
	for _, ch := range s.cfg.Chains {
		out.BurnAddresses[ch.ID] = ch.BurnAddress
	}
	for _, t := range s.cfg.Targets {
		out.Targets = append(out.Targets, targetView{Symbol: t.Symbol, OptimalChain: t.OptimalChain, Tokens: t.Tokens})
	}
	for mode, legs := range s.cfg.Allocation.Tables {
		views := make([]legView, 0, len(legs))
		for _, l := range legs {
			views = append(views, legView{Name: l.Name, Kind: l.Kind, Percent: float64(l.WeightBps) / 100, Target: l.Target})
		}
		out.Allocations[mode] = views
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getChains(c *gin.Context) {
	chains := make([]domain.ChainInfo, 0, len(s.cfg.Chains))
	for _, ch := range s.cfg.Chains {
		chains = append(chains, ch.Info())
	}
	c.JSON(http.StatusOK, gin.H{"chains": chains})
}

type tokenRequest struct {
	Chain        domain.ChainID `json:"chain" binding:"required"`
	TokenAddress string         `json:"tokenAddress" binding:"required"`
}

func (s *Server) validateToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	class, err := s.burns.Classify(c.Request.Context(), req.Chain, strings.TrimSpace(req.TokenAddress))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

type routeRequest struct {
	Chain        domain.ChainID `json:"chain" binding:"required"`
	TokenAddress string         `json:"tokenAddress" binding:"required"`
	Amount       domain.Amount  `json:"amount"`
}

func (s *Server) analyzeRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	route, err := s.burns.AnalyzeRoute(c.Request.Context(), req.Chain, strings.TrimSpace(req.TokenAddress), req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

type burnRequest struct {
	WalletAddress     string         `json:"walletAddress" binding:"required"`
	TokenAddress      string         `json:"tokenAddress" binding:"required"`
	Amount            domain.Amount  `json:"amount"`
	Chain             domain.ChainID `json:"chain" binding:"required"`
	Mode              string         `json:"mode"`
	CrossChain        bool           `json:"crossChain"`
	DestinationWallet string         `json:"destinationWallet"`
}

func (s *Server) startBurn(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.burns.Start(c.Request.Context(), burn.BurnRequest{
		WalletAddress:     strings.TrimSpace(req.WalletAddress),
		TokenAddress:      strings.TrimSpace(req.TokenAddress),
		Amount:            req.Amount,
		Chain:             req.Chain,
		Mode:              mode,
		CrossChain:        req.CrossChain,
		DestinationWallet: strings.TrimSpace(req.DestinationWallet),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type recordView struct {
	*domain.BurnRecord
	Summary      string            `json:"summary"`
	BurnedAmount domain.Amount     `json:"burned_amount"`
	ExplorerURLs map[string]string `json:"explorer_urls,omitempty"`
}

func (s *Server) view(rec *domain.BurnRecord) recordView {
	v := recordView{BurnRecord: rec, Summary: rec.Summary(), BurnedAmount: rec.BurnedAmount()}
	if rec.Plan == nil {
		return v
	}
	for _, step := range rec.Plan.Steps {
		if step.TxRef == "" {
			continue
		}
		ch, ok := s.cfg.Chain(step.Chain)
		if !ok {
			continue
		}
		if v.ExplorerURLs == nil {
			v.ExplorerURLs = map[string]string{}
		}
		v.ExplorerURLs[step.ID] = ch.Info().TxURL(step.TxRef)
	}
	return v
}

func (s *Server) getBurn(c *gin.Context) {
	rec, err := s.burns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(rec))
}

func (s *Server) listBurns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		badRequest(c, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageSize)
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		badRequest(c, "offset must be a non-negative integer")
		return
	}

	f := storage.ListFilter{
		Wallet: c.Query("wallet"),
		Chain:  domain.ChainID(c.Query("chain")),
		Token:  c.Query("token"),
	}
	if st := c.Query("status"); st != "" {
		for _, part := range strings.Split(st, ",") {
			f.Statuses = append(f.Statuses, domain.PlanStatus(strings.TrimSpace(part)))
		}
	}

	recs, err := s.burns.List(c.Request.Context(), f, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]recordView, 0, len(recs))
	for _, r := range recs {
		views = append(views, s.view(r))
	}
	c.JSON(http.StatusOK, gin.H{"records": views, "limit": limit, "offset": offset})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) cancelBurn(c *gin.Context) {
	rec, err := s.burns.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		code := statusFor(err)
		if code == http.StatusConflict && rec != nil {
			c.JSON(code, gin.H{"error": err.Error(), "record": s.view(rec)})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view(rec))
}

func (s *Server) getStats(c *gin.Context) {
	st, err := s.burns.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getCommunityStats(c *gin.Context) {
	st, err := s.burns.CommunityStats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
