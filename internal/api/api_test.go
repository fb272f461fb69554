package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/burnrelay/internal/auth"
	"github.com/vietddude/burnrelay/internal/burn"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/events"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

const totpSecret = "JBSWY3DPEHPK3PXP"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBurns struct {
	mu        sync.Mutex
	records   map[string]*domain.BurnRecord
	startErr  error
	cancelErr error
	started   []burn.BurnRequest
	resumed   []string
	filter    storage.ListFilter
	contest   bool
}

func newFakeBurns() *fakeBurns {
	return &fakeBurns{records: map[string]*domain.BurnRecord{}}
}

func (f *fakeBurns) Start(_ context.Context, req burn.BurnRequest) (*burn.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, fmt.Errorf("could not start: %w", f.startErr)
	}
	f.started = append(f.started, req)
	plan := &domain.ExecutionPlan{ID: "plan-1", BurnRecordID: "rec-1", Mode: req.Mode, Status: domain.PlanPending}
	return &burn.StartResult{BurnRecordID: "rec-1", ExecutionPlan: plan}, nil
}

func (f *fakeBurns) Get(_ context.Context, id string) (*domain.BurnRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRecordNotFound, id)
	}
	return rec.Clone(), nil
}

func (f *fakeBurns) List(_ context.Context, filter storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	var out []*domain.BurnRecord
	for _, r := range f.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeBurns) Cancel(_ context.Context, id string) (*domain.BurnRecord, error) {
	rec, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if f.cancelErr != nil {
		return rec, f.cancelErr
	}
	rec.Status = domain.PlanFailed
	return rec, nil
}

func (f *fakeBurns) Resume(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, id)
	return true, nil
}

func (f *fakeBurns) Classify(_ context.Context, chain domain.ChainID, token string) (domain.TokenClassification, error) {
	if token == "bad" {
		return domain.TokenClassification{}, fmt.Errorf("%w: no code at address", domain.ErrInvalidToken)
	}
	return domain.TokenClassification{Token: domain.Token{Chain: chain, Address: token}, IsValid: true, IsBurnable: true}, nil
}

func (f *fakeBurns) AnalyzeRoute(_ context.Context, chain domain.ChainID, token string, amount domain.Amount) (domain.CrossChainRoute, error) {
	return domain.CrossChainRoute{SourceChain: chain, SourceToken: token, Amount: amount}, nil
}

func (f *fakeBurns) Stats(context.Context) (burn.Stats, error) {
	return burn.Stats{TotalRecords: len(f.records)}, nil
}

func (f *fakeBurns) CommunityStats(context.Context) (burn.CommunityStats, error) {
	return burn.CommunityStats{TotalBurns: 1}, nil
}

func (f *fakeBurns) SetContestActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contest = active
}

func (f *fakeBurns) ContestActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contest
}

type harness struct {
	srv       *Server
	burns     *fakeBurns
	broadcast *events.Broadcaster
	auth      *auth.Authenticator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.AppConfig{
		Chains: []config.ChainConfig{
			{ID: domain.ChainBase, Family: domain.FamilyEVM, Name: "Base", Explorer: "https://basescan.org", BurnAddress: domain.EVMBurnAddress},
		},
		Allocation: config.AllocationConfig{Tables: map[domain.AllocationMode][]config.LegConfig{
			domain.ModeContest: {
				{Name: "burn", Kind: domain.DestBurn, WeightBps: 8800},
				{Name: "pool", Kind: domain.DestPool, WeightBps: 1200},
			},
		}},
		Admin:  config.AdminConfig{TOTPSecret: totpSecret, JWTSecret: "test-key", SessionTTL: time.Hour, Issuer: "burnrelay"},
		Server: config.ServerConfig{AllowedOrigins: []string{"https://app.example"}},
	}
	h := &harness{burns: newFakeBurns(), broadcast: events.NewBroadcaster()}
	h.auth = auth.NewAuthenticator(cfg.Admin, nil, nil)
	h.srv = NewServer(Deps{Config: cfg, Burns: h.burns, Auth: h.auth, Events: h.broadcast})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(totpSecret, time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	w := h.do(t, http.MethodPost, "/api/admin/sessions", map[string]string{"code": code})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Token
}

func sampleRecord() *domain.BurnRecord {
	return &domain.BurnRecord{
		ID:            "rec-1",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		SourceChain:   domain.ChainBase,
		Status:        domain.PlanInProgress,
		Plan: &domain.ExecutionPlan{
			ID:     "plan-1",
			Status: domain.PlanInProgress,
			Steps: []domain.ExecutionStep{
				{ID: "burn-transfer", LegName: "burn", Chain: domain.ChainBase, Status: domain.StepSubmitted, TxRef: "0xabc"},
				{ID: "pool-transfer", LegName: "pool", Chain: domain.ChainBase, Status: domain.StepPending},
			},
		},
	}
}

func TestStartBurn(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/burns", map[string]any{
		"walletAddress": "0x1111111111111111111111111111111111111111",
		"tokenAddress":  "0x2222222222222222222222222222222222222222",
		"amount":        "1000000",
		"chain":         "base",
		"mode":          "contest",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res burn.StartResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "rec-1", res.BurnRecordID)
	require.Len(t, h.burns.started, 1)
	assert.Equal(t, domain.ModeContest, h.burns.started[0].Mode)
	assert.Equal(t, "1000000", h.burns.started[0].Amount.String())
}

func TestStartBurn_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		startErr error
		want     int
		contains string
	}{
		{name: "missing fields", body: map[string]any{"chain": "base"}, want: http.StatusBadRequest},
		{name: "bad mode", body: map[string]any{"walletAddress": "w", "tokenAddress": "t", "chain": "base", "mode": "drb_direct"}, want: http.StatusBadRequest},
		{name: "bad amount", body: map[string]any{"walletAddress": "w", "tokenAddress": "t", "chain": "base", "amount": "1.5"}, want: http.StatusBadRequest},
		{name: "pre-submission", body: map[string]any{"walletAddress": "w", "tokenAddress": "t", "chain": "base"}, startErr: domain.ErrNoLiquidity, want: http.StatusUnprocessableEntity, contains: "could not start: no liquidity"},
		{name: "unexpected", body: map[string]any{"walletAddress": "w", "tokenAddress": "t", "chain": "base"}, startErr: fmt.Errorf("disk full"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.burns.startErr = tt.startErr
			w := h.do(t, http.MethodPost, "/api/burns", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.contains != "" {
				assert.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}
}

func TestGetBurn(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()

	w := h.do(t, http.MethodGet, "/api/burns/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "0 of 2 steps confirmed", out["summary"])
	urls := out["explorer_urls"].(map[string]any)
	assert.Equal(t, "https://basescan.org/tx/0xabc", urls["burn-transfer"])

	w = h.do(t, http.MethodGet, "/api/burns/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListBurns(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()

	w := h.do(t, http.MethodGet, "/api/burns?wallet=0xabc&status=pending,in_progress&limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", h.burns.filter.Wallet)
	assert.Equal(t, []domain.PlanStatus{domain.PlanPending, domain.PlanInProgress}, h.burns.filter.Statuses)
	assert.Contains(t, w.Body.String(), `"limit":100`)

	w = h.do(t, http.MethodGet, "/api/burns?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelBurn(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()

	w := h.do(t, http.MethodPost, "/api/burns/rec-1/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h.burns.cancelErr = domain.ErrCancelNotAllowed
	w = h.do(t, http.MethodPost, "/api/burns/rec-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"record"`)
}

func TestValidateToken(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/validate-token", map[string]string{"chain": "base", "tokenAddress": "0xabc"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/api/validate-token", map[string]string{"chain": "base", "tokenAddress": "bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetConfig(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out configView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, domain.EVMBurnAddress, out.BurnAddresses[domain.ChainBase])
	legs := out.Allocations[domain.ModeContest]
	require.Len(t, legs, 2)
	assert.Equal(t, 88.0, legs[0].Percent)
	assert.Equal(t, 12.0, legs[1].Percent)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()

	w := h.do(t, http.MethodPost, "/api/admin/contest", map[string]bool{"active": true})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "admin routes need a session")

	w = h.do(t, http.MethodPost, "/api/admin/sessions", map[string]string{"code": "000000"})
	if w.Code != http.StatusCreated {
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	token := h.login(t)
	bearer := "Bearer " + token

	w = h.do(t, http.MethodPost, "/api/admin/contest", map[string]bool{"active": true}, "Authorization", bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, h.burns.ContestActive())

	w = h.do(t, http.MethodPost, "/api/admin/burns/rec-1/resume", nil, "Authorization", bearer)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"rec-1"}, h.burns.resumed)

	w = h.do(t, http.MethodDelete, "/api/admin/sessions", nil, "Authorization", bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodPost, "/api/admin/contest", map[string]bool{"active": false}, "Authorization", bearer)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked sessions are refused")
	assert.True(t, h.burns.ContestActive())
}

func TestStreamBurn(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/burns/rec-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap map[string]any
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap["type"])

	rec := sampleRecord()
	require.NoError(t, h.broadcast.Emit(context.Background(), domain.NewBurnEvent(domain.EventStepUpdated, rec, &rec.Plan.Steps[0], time.Now())))
	other := sampleRecord()
	other.ID = "rec-2"
	require.NoError(t, h.broadcast.Emit(context.Background(), domain.NewBurnEvent(domain.EventStepUpdated, other, nil, time.Now())))
	require.NoError(t, h.broadcast.Emit(context.Background(), domain.NewBurnEvent(domain.EventRecordClosed, rec, nil, time.Now())))

	var ev domain.BurnEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventStepUpdated, ev.Type)
	assert.Equal(t, "burn-transfer", ev.StepID)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventRecordClosed, ev.Type)
	assert.Equal(t, "rec-1", ev.RecordID)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamBurn_RejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	h.burns.records["rec-1"] = sampleRecord()
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/burns/rec-1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
