package bidding

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
)

// --- Request/Response types ---

// BidRequest is the JSON body for POST /auction/bids.
type BidRequest struct {
	Amount decimal.Decimal `json:"amount"` // increment added to the caller's cumulative bid
}

// BidResponse is returned from POST /auction/bids.
type BidResponse struct {
	Participant common.Address  `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
	Total       decimal.Decimal `json:"total"`
	Leader      common.Address  `json:"leader"`
	HighBid     decimal.Decimal `json:"high_bid"`
	Phase       model.Phase     `json:"phase"`
}

// WithdrawResponse is returned from POST /auction/bids/withdraw.
type WithdrawResponse struct {
	Participant common.Address  `json:"participant"`
	Refund      decimal.Decimal `json:"refund"`
	Leader      common.Address  `json:"leader"`
	HighBid     decimal.Decimal `json:"high_bid"`
}

// AuctionSummary is returned from GET /auction.
type AuctionSummary struct {
	ID                string          `json:"id"`
	Seq               uint64          `json:"seq"`
	Phase             model.Phase     `json:"phase"`
	Leader            common.Address  `json:"leader"`
	HighBid           decimal.Decimal `json:"high_bid"`
	MinimumNextTotal  decimal.Decimal `json:"minimum_next_total"`
	FloorPrice        decimal.Decimal `json:"floor_price"`
	IncrementPercent  int64           `json:"increment_percent"`
	EnforceIncrement  bool            `json:"enforce_increment"`
	ParticipationFee  decimal.Decimal `json:"participation_fee"`
	FeesCollected     decimal.Decimal `json:"fees_collected"`
	Admin             common.Address  `json:"admin"`
	Treasury          common.Address  `json:"treasury"`
	TokenID           uint64          `json:"token_id"`
	Paused            bool            `json:"paused"`
	Finalized         bool            `json:"finalized"`
	ProceedsWithdrawn bool            `json:"proceeds_withdrawn"`
	Winner            common.Address  `json:"winner"`
	TimeRemaining     float64         `json:"time_remaining_seconds"`
	BidderCount       int             `json:"bidder_count"`
}

// BidInfo is returned from GET /auction/bids/{address}.
type BidInfo struct {
	Participant   common.Address  `json:"participant"`
	CumulativeBid decimal.Decimal `json:"cumulative_bid"`
	HasPaidFee    bool            `json:"has_paid_fee"`
	IsLeader      bool            `json:"is_leader"`
	History       []model.Event   `json:"history"`
}

// TransferAdminRequest is the JSON body for POST /admin/transfer.
type TransferAdminRequest struct {
	NewAdmin common.Address `json:"new_admin"`
}

// ApproveRequest is the JSON body for POST /custody/approve.
type ApproveRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Register mounts the auction routes on r.
func (s *Service) Register(r chi.Router) {
	r.Get("/auction", s.GetAuction)
	r.Get("/auction/phases/{phase}", s.GetPhase)
	r.Get("/auction/bidders", s.ListBidders)
	r.Get("/auction/bids/{address}", s.GetBid)
	r.Get("/auction/events", s.ListEvents)
	r.Post("/auction/bids", s.PlaceBid)
	r.Post("/auction/bids/withdraw", s.WithdrawBid)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/advance", s.AdvancePhase)
		r.Post("/finalize", s.Finalize)
		r.Post("/proceeds", s.WithdrawProceeds)
		r.Post("/pause", s.Pause)
		r.Post("/unpause", s.Unpause)
		r.Post("/transfer", s.TransferAdmin)
		r.Post("/archive", s.Archive)
		r.Post("/emergency/funds", s.EmergencyFunds)
		r.Post("/emergency/item", s.EmergencyItem)
	})

	r.Get("/custody/balances/{address}", s.GetBalance)
	r.Post("/custody/approve", s.Approve)
}

// --- Queries ---

// GetAuction handles GET /api/v1/auction
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(r.Context())
	st := eng.State()
	cfg := eng.Config()

	writeJSON(w, http.StatusOK, AuctionSummary{
		ID:                st.ID,
		Seq:               st.Seq,
		Phase:             st.CurrentPhase,
		Leader:            st.CurrentLeader,
		HighBid:           st.CurrentHighBid,
		MinimumNextTotal:  eng.Rule().MinimumNextTotal(st.CurrentHighBid),
		FloorPrice:        cfg.FloorPrice,
		IncrementPercent:  cfg.IncrementPercent,
		EnforceIncrement:  cfg.EnforceIncrement,
		ParticipationFee:  cfg.ParticipationFee,
		FeesCollected:     st.FeesCollected,
		Admin:             st.Admin,
		Treasury:          cfg.Treasury,
		TokenID:           cfg.TokenID,
		Paused:            st.Paused,
		Finalized:         st.Finalized,
		ProceedsWithdrawn: st.ProceedsWithdrawn,
		Winner:            st.Winner,
		TimeRemaining:     eng.TimeRemaining().Seconds(),
		BidderCount:       len(st.Bidders),
	})
}

// GetPhase handles GET /api/v1/auction/phases/{phase}
func (s *Service) GetPhase(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "phase"), 10, 8)
	if err != nil {
		writeError(w, "phase must be 0, 1 or 2", http.StatusBadRequest)
		return
	}
	rec, err := s.Engine(r.Context()).PhaseRecord(model.Phase(n))
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListBidders handles GET /api/v1/auction/bidders
// Returns the bidder set in entry order, which is also tie-break order.
func (s *Service) ListBidders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine(r.Context()).Bidders())
}

// GetBid handles GET /api/v1/auction/bids/{address}
func (s *Service) GetBid(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, "invalid address", http.StatusBadRequest)
		return
	}
	who := common.HexToAddress(raw)
	ctx := r.Context()
	eng := s.Engine(ctx)

	history, err := s.store.ListParticipantEvents(ctx, eng.ID(), who)
	if err != nil {
		writeError(w, "failed to load bid history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.Event{}
	}
	leader, _ := eng.Leader()

	writeJSON(w, http.StatusOK, BidInfo{
		Participant:   who,
		CumulativeBid: eng.BidOf(who),
		HasPaidFee:    eng.HasPaidFee(who),
		IsLeader:      leader == who && leader != (common.Address{}),
		History:       history,
	})
}

// ListEvents handles GET /api/v1/auction/events?after=N&limit=M
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, "after must be a sequence number", http.StatusBadRequest)
			return
		}
		after = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx := r.Context()
	events, err := s.store.ListEvents(ctx, s.Engine(ctx).ID(), after, limit)
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Participant operations ---

// PlaceBid handles POST /api/v1/auction/bids
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var resp BidResponse
	err = s.mutate(r.Context(), "place_bid", func(e *auction.Engine) error {
		if err := e.PlaceBid(r.Context(), caller, req.Amount); err != nil {
			return err
		}
		leader, high := e.Leader()
		resp = BidResponse{
			Participant: caller,
			Amount:      req.Amount,
			Total:       e.BidOf(caller),
			Leader:      leader,
			HighBid:     high,
			Phase:       e.Phase(),
		}
		return nil
	})
	if err != nil {
		metrics.BidRejections.WithLabelValues(reason(err)).Inc()
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// WithdrawBid handles POST /api/v1/auction/bids/withdraw
func (s *Service) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var resp WithdrawResponse
	err = s.mutate(r.Context(), "withdraw_bid", func(e *auction.Engine) error {
		refund, err := e.WithdrawBid(r.Context(), caller)
		if err != nil {
			return err
		}
		leader, high := e.Leader()
		resp = WithdrawResponse{Participant: caller, Refund: refund, Leader: leader, HighBid: high}
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Administrative operations ---

// adminOp runs a caller-gated engine operation and responds with the
// resulting summary.
func (s *Service) adminOp(w http.ResponseWriter, r *http.Request, op string, fn func(e *auction.Engine, caller common.Address) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.mutate(r.Context(), op, func(e *auction.Engine) error { return fn(e, caller) }); err != nil {
		writeErr(w, err)
		return
	}
	s.GetAuction(w, r)
}

// AdvancePhase handles POST /api/v1/admin/advance
func (s *Service) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "advance_phase", func(e *auction.Engine, caller common.Address) error {
		return e.AdvancePhase(r.Context(), caller)
	})
}

// Finalize handles POST /api/v1/admin/finalize
func (s *Service) Finalize(w http.ResponseWriter, r *http.Request) {
	var final *model.AuctionState
	s.adminOp(w, r, "finalize", func(e *auction.Engine, caller common.Address) error {
		if err := e.FinalizeAuction(r.Context(), caller); err != nil {
			return err
		}
		final = e.State()
		return nil
	})
	// adminOp returns after mutate has stored the finalization event.
	if final != nil {
		s.archiveInBackground(final)
	}
}

// WithdrawProceeds handles POST /api/v1/admin/proceeds
func (s *Service) WithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "withdraw_proceeds", func(e *auction.Engine, caller common.Address) error {
		return e.WithdrawProceeds(r.Context(), caller)
	})
}

// Pause handles POST /api/v1/admin/pause
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "pause", func(e *auction.Engine, caller common.Address) error {
		return e.Pause(r.Context(), caller)
	})
}

// Unpause handles POST /api/v1/admin/unpause
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "unpause", func(e *auction.Engine, caller common.Address) error {
		return e.Unpause(r.Context(), caller)
	})
}

// TransferAdmin handles POST /api/v1/admin/transfer
func (s *Service) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req TransferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.adminOp(w, r, "transfer_admin", func(e *auction.Engine, caller common.Address) error {
		return e.TransferAdmin(r.Context(), caller, req.NewAdmin)
	})
}

// EmergencyFunds handles POST /api/v1/admin/emergency/funds
func (s *Service) EmergencyFunds(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "emergency_funds", func(e *auction.Engine, caller common.Address) error {
		_, err := e.EmergencyWithdrawFunds(r.Context(), caller)
		return err
	})
}

// EmergencyItem handles POST /api/v1/admin/emergency/item
func (s *Service) EmergencyItem(w http.ResponseWriter, r *http.Request) {
	s.adminOp(w, r, "emergency_item", func(e *auction.Engine, caller common.Address) error {
		return e.EmergencyWithdrawItem(r.Context(), caller)
	})
}

// Archive handles POST /api/v1/admin/archive
func (s *Service) Archive(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.ArchiveNow(r.Context(), caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- In-process custody (development) ---

// GetBalance handles GET /api/v1/custody/balances/{address}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	if s.token == nil {
		writeErr(w, ErrCustodyDisabled)
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, "invalid address", http.StatusBadRequest)
		return
	}
	who := common.HexToAddress(raw)
	spender := s.Engine(r.Context()).Config().Self

	writeJSON(w, http.StatusOK, map[string]any{
		"address":   who,
		"symbol":    s.token.Symbol(),
		"balance":   s.token.BalanceOf(who),
		"allowance": s.token.Allowance(who, spender),
	})
}

// Approve handles POST /api/v1/custody/approve
// The caller authorizes the engine to pull up to amount.
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	if s.token == nil {
		writeErr(w, ErrCustodyDisabled)
		return
	}
	caller, err := callerFrom(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	spender := s.Engine(r.Context()).Config().Self
	if err := s.token.Approve(caller, spender, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     caller,
		"spender":   spender,
		"allowance": s.token.Allowance(caller, spender),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}
