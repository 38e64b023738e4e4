package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/distro"
	"relay-market-core/internal/domain"
	"relay-market-core/internal/feeflow"
	"relay-market-core/internal/relay"
	"relay-market-core/internal/rewarder"
)

// newRouter builds the proceeds router wired into every market.
func newRouter(b bank.Bank, rw *rewarder.Ledger, cut decimal.Decimal) feeflow.Router {
	return distro.NewRouter(b, rw, cut, nil)
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps operation errors to HTTP statuses. Failed validation never
// mutated anything, so clients may retry with corrected input.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMarketNotInitialized):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrInvalidParams),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, bank.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrAlreadyWired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientCollateral),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrPriceExceeded),
		errors.Is(err, domain.ErrEmptyLot),
		errors.Is(err, domain.ErrSlippage),
		errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMarketHalted),
		errors.Is(err, domain.ErrReserveUnderfunded):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

type createMarketRequest struct {
	BaseAsset            string          `json:"base_asset"`
	SettlementAsset      string          `json:"settlement_asset"`
	TokenName            string          `json:"token_name"`
	TokenSymbol          string          `json:"token_symbol"`
	InitialReserveTarget decimal.Decimal `json:"initial_reserve_target"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	FeeFraction          decimal.Decimal `json:"fee_fraction"`
	StartPrice           decimal.Decimal `json:"start_price"`
	PriceFloor           decimal.Decimal `json:"price_floor"`
	HalfLifeMs           int64           `json:"half_life_ms"`
	ResetMultiplier      decimal.Decimal `json:"reset_multiplier"`
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	marketID, err := s.registry.CreateMarket(r.Context(), relay.CreateMarketParams{
		BaseAsset:            req.BaseAsset,
		SettlementAsset:      req.SettlementAsset,
		TokenName:            req.TokenName,
		TokenSymbol:          req.TokenSymbol,
		InitialReserveTarget: req.InitialReserveTarget,
		ExchangeRate:         req.ExchangeRate,
		FeeFraction:          req.FeeFraction,
		Auction: domain.AuctionParams{
			StartPrice:      req.StartPrice,
			PriceFloor:      req.PriceFloor,
			HalfLife:        time.Duration(req.HalfLifeMs) * time.Millisecond,
			ResetMultiplier: req.ResetMultiplier,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"market_id": marketID})
}

func (s *Server) handleWireMarket(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")
	m, err := s.registry.Market(marketID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.wireMarket(marketID, m.TokenAsset()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"market_id": marketID, "status": "wired"})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Markets())
}

// marketResponse combines market state with a live auction quote.
type marketResponse struct {
	Market *domain.Market `json:"market"`
	Quote  *relay.Quote   `json:"quote"`
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")

	m, err := s.registry.Market(marketID)
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := s.registry.Quote(marketID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marketResponse{Market: m, Quote: quote})
}

type mintRequest struct {
	Caller     string          `json:"caller"`
	Recipient  string          `json:"recipient"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	MinToken   decimal.Decimal `json:"min_token"`
	DeadlineMs int64           `json:"deadline_ms"` // 0 disables
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = req.Caller
	}
	var deadline time.Time
	if req.DeadlineMs > 0 {
		deadline = time.UnixMilli(req.DeadlineMs)
	}

	minted, err := s.registry.Mint(r.Context(), r.PathValue("id"), req.Caller, recipient, req.BaseAmount, req.MinToken, deadline)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"minted": minted})
}

type redeemRequest struct {
	Caller      string          `json:"caller"`
	TokenAmount decimal.Decimal `json:"token_amount"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	baseOut, err := s.registry.Redeem(r.Context(), r.PathValue("id"), req.Caller, req.TokenAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"base_out": baseOut})
}

type buyRequest struct {
	Buyer    string          `json:"buyer"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	settlement, err := s.registry.Buy(r.Context(), r.PathValue("id"), req.Buyer, req.MaxPrice)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.registry.Settlements(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}

type stakeRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rw, err := s.registry.Rewarder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rw.Stake(req.Account, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"staked": rw.Staked(req.Account)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rw, err := s.registry.Rewarder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rw.Withdraw(req.Account, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"staked": rw.Staked(req.Account)})
}

type claimRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rw, err := s.registry.Rewarder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	paid, err := rw.Claim(req.Account, req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"claimed": paid})
}

type fundRequest struct {
	Asset   string          `json:"asset"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// handleFund is the dev faucet backing the process-local asset ledger.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.bank.Deposit(req.Asset, req.Account, req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": s.bank.Balance(req.Asset, req.Account)})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	assets := r.URL.Query()["asset"]

	balances := make(map[string]decimal.Decimal, len(assets))
	for _, asset := range assets {
		balances[asset] = s.bank.Balance(asset, account)
	}
	writeJSON(w, http.StatusOK, balances)
}

// statusResponse is the JSON response for the /status endpoint.
type statusResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Markets int    `json:"markets"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "running",
		Uptime:  time.Since(started).String(),
		Markets: len(s.registry.Markets()),
	})
}
