// Package httpapi exposes the engine over HTTP: swap lifecycle, market
// orders, ledger queries, market stats, the WebSocket feed and operational
// endpoints. Errors carry a stable machine-readable kind; transports map
// kinds to status codes, never the other way around.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"token-exchange-engine/internal/bridge"
	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/exchange"
	"token-exchange-engine/internal/ledger"
	"token-exchange-engine/internal/marketdata"
	"token-exchange-engine/internal/observability"
	"token-exchange-engine/internal/storage"
)

// Server wires the engine components to HTTP routes.
type Server struct {
	ledger   *ledger.Service
	executor *exchange.Executor
	builder  *bridge.Builder
	trades   storage.TradeStore
	market   *marketdata.Recorder
	feed     http.Handler
	metrics  *observability.Metrics
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewServer creates a Server. feed and market may be nil; the corresponding
// routes then answer 404.
func NewServer(ledgerSvc *ledger.Service, executor *exchange.Executor, builder *bridge.Builder, trades storage.TradeStore, market *marketdata.Recorder, feed http.Handler, metrics *observability.Metrics, logger *log.Logger) *Server {
	s := &Server{
		ledger:   ledgerSvc,
		executor: executor,
		builder:  builder,
		trades:   trades,
		market:   market,
		feed:     feed,
		metrics:  metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/api/v1/swap/config", http.MethodGet, s.handleSwapConfig)
	s.handle("/api/v1/swap/confirm", http.MethodPost, s.handleSwapConfirm)
	s.handle("/api/v1/swap/history", http.MethodGet, s.handleSwapHistory)
	s.handle("/api/v1/swap", http.MethodPost, s.handleSwapCreate)
	s.handle("/api/v1/market/order", http.MethodPost, s.handleMarketOrder)
	s.handle("/api/v1/market/trades", http.MethodGet, s.handleMarketTrades)
	s.handle("/api/v1/market/stats", http.MethodGet, s.handleMarketStats)
	s.handle("/api/v1/ledger/balance", http.MethodGet, s.handleBalance)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", observability.Handler())
	if s.feed != nil {
		s.mux.Handle("/ws/market", s.feed)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handle registers a method-checked, instrumented route.
func (s *Server) handle(route, method string, h func(w http.ResponseWriter, r *http.Request)) {
	s.mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			s.writeError(w, route, domain.E(domain.KindValidation, "method %s not allowed", r.Method))
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.
				WithLabelValues(route, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- swap routes ---

type swapCreateRequest struct {
	BuyerAddress string `json:"buyer_address"`
	UnitAmount   uint64 `json:"unit_amount"`
}

type swapCreateResponse struct {
	SwapID              string `json:"swap_id"`
	UnsignedTransaction string `json:"unsigned_transaction"`
	UnitAmount          uint64 `json:"unit_amount"`
	QuoteCost           uint64 `json:"quote_cost"`
	ExpiresAt           int64  `json:"expires_at"`
}

func (s *Server) handleSwapCreate(w http.ResponseWriter, r *http.Request) {
	var req swapCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "/api/v1/swap", err)
		return
	}

	artifact, err := s.builder.CreateSwap(r.Context(), req.BuyerAddress, req.UnitAmount)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SwapCreateFails.WithLabelValues(string(domain.KindOf(err))).Inc()
		}
		s.writeError(w, "/api/v1/swap", err)
		return
	}
	if s.metrics != nil {
		s.metrics.SwapsCreated.Inc()
	}

	writeJSON(w, http.StatusOK, swapCreateResponse{
		SwapID:              artifact.SwapID,
		UnsignedTransaction: artifact.UnsignedTxB64,
		UnitAmount:          artifact.UnitAmount,
		QuoteCost:           artifact.QuoteCost,
		ExpiresAt:           artifact.ExpiresAt,
	})
}

type swapConfirmRequest struct {
	SwapID    string `json:"swap_id"`
	Signature string `json:"signature"`
}

func (s *Server) handleSwapConfirm(w http.ResponseWriter, r *http.Request) {
	var req swapConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "/api/v1/swap/confirm", err)
		return
	}

	transitioned, err := s.builder.ConfirmSwap(r.Context(), req.SwapID, req.Signature)
	if err != nil {
		s.writeError(w, "/api/v1/swap/confirm", err)
		return
	}
	if transitioned && s.metrics != nil {
		s.metrics.SwapsCompleted.Inc()
	}

	message := "swap completed"
	if !transitioned {
		message = "swap already completed"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

func (s *Server) handleSwapConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := s.builder.SwapConfig(r.Context())
	if err != nil {
		s.writeError(w, "/api/v1/swap/config", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type swapHistoryEntry struct {
	ID          string `json:"id"`
	UnitAmount  uint64 `json:"unit_amount"`
	QuoteCost   uint64 `json:"quote_cost"`
	UnitPrice   uint64 `json:"unit_price"`
	Signature   string `json:"signature"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at"`
}

func (s *Server) handleSwapHistory(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	swaps, err := s.builder.History(r.Context(), address)
	if err != nil {
		s.writeError(w, "/api/v1/swap/history", err)
		return
	}

	out := make([]swapHistoryEntry, 0, len(swaps))
	for _, swap := range swaps {
		out = append(out, swapHistoryEntry{
			ID:          swap.ID,
			UnitAmount:  swap.UnitAmount,
			QuoteCost:   swap.QuoteCost,
			UnitPrice:   swap.UnitPrice,
			Signature:   swap.TxSignature,
			CreatedAt:   swap.CreatedAt,
			CompletedAt: swap.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- market routes ---

type marketOrderRequest struct {
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
	Pair      string `json:"pair"`
	Side      string `json:"side"`
	Amount    int64  `json:"amount"`
}

type marketOrderResponse struct {
	FilledAmount    int64            `json:"filled_amount"`
	Price           float64          `json:"price"`
	Fee             int64            `json:"fee"`
	UpdatedBalances map[string]int64 `json:"updated_balances"`
	AuditHash       string           `json:"audit_hash"`
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req marketOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "/api/v1/market/order", err)
		return
	}

	pair, ok := domain.ParsePair(req.Pair)
	if !ok {
		s.writeError(w, "/api/v1/market/order", domain.E(domain.KindValidation, "malformed pair %q", req.Pair))
		return
	}
	owner := domain.Owner{Kind: domain.OwnerKind(req.OwnerKind), ID: req.OwnerID}

	trade, err := s.executor.Execute(r.Context(), exchange.Order{
		Owner:      owner,
		Pair:       pair,
		Side:       req.Side,
		BaseAmount: req.Amount,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.TradesFailed.WithLabelValues(string(domain.KindOf(err))).Inc()
		}
		s.writeError(w, "/api/v1/market/order", err)
		return
	}
	if s.metrics != nil {
		s.metrics.TradesFilled.WithLabelValues(trade.Pair.String(), trade.Side).Inc()
		s.metrics.TradeVolume.WithLabelValues(trade.Pair.String()).Add(float64(trade.BaseAmount))
	}

	writeJSON(w, http.StatusOK, marketOrderResponse{
		FilledAmount:    trade.BaseAmount,
		Price:           trade.Price,
		Fee:             trade.FeeAmount,
		UpdatedBalances: s.balancesAfterTrade(r.Context(), owner, trade),
		AuditHash:       trade.ID,
	})
}

// balancesAfterTrade reads back the rows the trade touched. Best-effort
// display data; a read failure leaves the entry out rather than failing
// the settled order.
func (s *Server) balancesAfterTrade(ctx context.Context, owner domain.Owner, trade *domain.Trade) map[string]int64 {
	out := make(map[string]int64, 3)
	for _, token := range []domain.Token{trade.Pair.Base, trade.Pair.Quote, domain.TokenSOL} {
		if _, seen := out[string(token)]; seen {
			continue
		}
		b, err := s.ledger.Balance(ctx, owner, token)
		if err != nil {
			s.logger.Printf("read %s balance after trade: %v", token, err)
			continue
		}
		out[string(token)] = b.Amount
	}
	return out
}

func (s *Server) handleMarketTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := domain.Owner{
		Kind: domain.OwnerKind(q.Get("owner_kind")),
		ID:   q.Get("owner_id"),
	}

	trades, err := s.executor.ListTrades(r.Context(), s.trades, owner, 50)
	if err != nil {
		s.writeError(w, "/api/v1/market/trades", err)
		return
	}

	out := make([]map[string]interface{}, 0, len(trades))
	for _, t := range trades {
		out = append(out, map[string]interface{}{
			"id":           t.ID,
			"pair":         t.Pair.String(),
			"side":         t.Side,
			"base_amount":  t.BaseAmount,
			"quote_amount": t.QuoteAmount,
			"price":        t.Price,
			"fee":          t.FeeAmount,
			"created_at":   t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarketStats(w http.ResponseWriter, r *http.Request) {
	if s.market == nil {
		s.writeError(w, "/api/v1/market/stats", domain.E(domain.KindNotFound, "market stats not available"))
		return
	}

	pair := r.URL.Query().Get("pair")
	if _, ok := domain.ParsePair(pair); !ok {
		s.writeError(w, "/api/v1/market/stats", domain.E(domain.KindValidation, "malformed pair %q", pair))
		return
	}

	stats, err := s.market.Stats24h(r.Context(), pair)
	if err != nil {
		s.writeError(w, "/api/v1/market/stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pair":        stats.Pair,
		"last_price":  stats.LastPrice,
		"high_price":  stats.HighPrice,
		"low_price":   stats.LowPrice,
		"base_volume": stats.BaseVolume,
		"trade_count": stats.TradeCount,
	})
}

// --- ledger routes ---

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := domain.Owner{
		Kind: domain.OwnerKind(q.Get("owner_kind")),
		ID:   q.Get("owner_id"),
	}

	view, err := s.ledger.LedgerView(r.Context(), owner, 20)
	if err != nil {
		s.writeError(w, "/api/v1/ledger/balance", err)
		return
	}

	// An optional token filter narrows the view to one token.
	tokenFilter := domain.Token(q.Get("token"))

	balances := make(map[string]map[string]int64, len(view.Balances))
	for _, b := range view.Balances {
		if tokenFilter != "" && b.Token != tokenFilter {
			continue
		}
		balances[string(b.Token)] = map[string]int64{
			"balance":         b.Amount,
			"lifetime_earned": b.LifetimeEarned,
		}
	}
	recent := make([]map[string]interface{}, 0, len(view.Recent))
	for _, tx := range view.Recent {
		recent = append(recent, map[string]interface{}{
			"hash":       tx.Hash,
			"from":       tx.From,
			"to":         tx.To,
			"amount":     tx.Amount,
			"token":      tx.Token,
			"kind":       tx.Kind,
			"status":     tx.Status,
			"memo":       tx.Memo,
			"created_at": tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":               owner.Key(),
		"balances":            balances,
		"recent_transactions": recent,
	})
}

// --- operational routes ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.E(domain.KindValidation, "malformed request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInsufficientFunds:
		return http.StatusBadRequest
	case domain.KindRestricted:
		return http.StatusForbidden
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, route string, err error) {
	kind := domain.KindOf(err)

	message := err.Error()
	var kinded *domain.Error
	if errors.As(err, &kinded) {
		message = kinded.Message
	} else {
		// Unclassified errors surface as external; the detail goes to the
		// log, not the client.
		s.logger.Printf("%s: %v", route, err)
		message = "upstream dependency failure"
	}

	writeJSON(w, statusFor(kind), map[string]interface{}{
		"error": map[string]string{
			"kind":    string(kind),
			"message": message,
		},
	})
}
