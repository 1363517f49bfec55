// Package auction implements the accounting and phase-transition engine of a
// single-item, three-phase continuous clearing auction.
//
// Participants raise a cumulative bid across three bidding windows. Only the
// final leader pays; everyone else can pull a full refund at any time before
// finalization. A one-time participation fee is forwarded to the treasury on
// a participant's first bid and is never returned.
//
// One Engine governs one item. Every operation runs under a single mutex and
// is all-or-nothing: a rejected operation leaves no trace in the ledger and
// moves no value. All monetary values use shopspring/decimal.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/increment"
	"github.com/atmx/auction-engine/internal/model"
)

// Config is the immutable configuration of one auction.
type Config struct {
	ID               string
	Admin            common.Address // initial administrator, transferable
	Treasury         common.Address // receives fees and winning proceeds
	Self             common.Address // the engine's custody identity
	TokenID          uint64         // auctioned item in the collectible registry
	FloorPrice       decimal.Decimal
	IncrementPercent int64
	EnforceIncrement bool
	ParticipationFee decimal.Decimal // zero disables the fee
	PhaseDurations   [model.PhaseCount]time.Duration
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	zero := common.Address{}
	switch {
	case c.Admin == zero:
		return fmt.Errorf("%w: admin is the zero address", ErrInvalidConfig)
	case c.Treasury == zero:
		return fmt.Errorf("%w: treasury is the zero address", ErrInvalidConfig)
	case c.Self == zero:
		return fmt.Errorf("%w: engine address is the zero address", ErrInvalidConfig)
	case c.ParticipationFee.IsNegative() || !c.ParticipationFee.IsInteger():
		return fmt.Errorf("%w: participation fee must be a non-negative whole number", ErrInvalidConfig)
	}
	for i, d := range c.PhaseDurations {
		if d < 0 {
			return fmt.Errorf("%w: phase %d duration is negative", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests and replay.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEventSink sets the receiver of domain notifications.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is the auction aggregate. The zero value is not usable; construct
// with New or Restore.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	rule   *increment.Rule
	pay    PaymentCustody
	reg    CollectibleRegistry
	sink   EventSink
	now    func() time.Time
	logger *slog.Logger

	admin             common.Address
	phase             model.Phase
	leader            common.Address
	highBid           decimal.Decimal
	winner            common.Address
	finalized         bool
	proceedsWithdrawn bool
	paused            bool
	feesCollected     decimal.Decimal
	phases            [model.PhaseCount]model.PhaseRecord

	ledger  map[common.Address]*model.Participant
	entries []common.Address // ledger creation order
	bidders *bidderSet
	seq     uint64
}

func newEngine(cfg Config, pay PaymentCustody, reg CollectibleRegistry, opts []Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pay == nil || reg == nil {
		return nil, fmt.Errorf("%w: payment custody and collectible registry are required", ErrInvalidConfig)
	}
	rule, err := increment.NewRule(cfg.FloorPrice, cfg.IncrementPercent, cfg.EnforceIncrement)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	e := &Engine{
		cfg:     cfg,
		rule:    rule,
		pay:     pay,
		reg:     reg,
		now:     time.Now,
		logger:  slog.Default(),
		admin:   cfg.Admin,
		ledger:  make(map[common.Address]*model.Participant),
		bidders: newBidderSet(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "auction", "auction_id", cfg.ID)
	for i, d := range cfg.PhaseDurations {
		e.phases[i].MinDuration = d
	}
	return e, nil
}

// New creates an auction in phase 0, starting the phase clock immediately.
// The collectible registry must already report the engine as the item's owner.
func New(ctx context.Context, cfg Config, pay PaymentCustody, reg CollectibleRegistry, opts ...Option) (*Engine, error) {
	e, err := newEngine(cfg, pay, reg, opts)
	if err != nil {
		return nil, err
	}

	owner, err := reg.OwnerOf(ctx, cfg.TokenID)
	if err != nil {
		return nil, fmt.Errorf("auction: query item owner: %w", err)
	}
	if owner != cfg.Self {
		return nil, fmt.Errorf("%w: item %d is owned by %s", ErrItemNotEscrowed, cfg.TokenID, owner.Hex())
	}

	e.phases[model.Phase0].StartTime = e.now()

	e.logger.Info("auction created",
		"admin", cfg.Admin.Hex(),
		"treasury", cfg.Treasury.Hex(),
		"token_id", cfg.TokenID,
		"floor", cfg.FloorPrice.String(),
		"increment_percent", cfg.IncrementPercent,
		"enforce_increment", cfg.EnforceIncrement,
		"fee", cfg.ParticipationFee.String(),
	)
	return e, nil
}

// Restore rebuilds an engine from a snapshot produced by State. The leader is
// recomputed from the ledger rather than trusted from the snapshot.
func Restore(cfg Config, st *model.AuctionState, pay PaymentCustody, reg CollectibleRegistry, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidConfig)
	}
	if cfg.ID == "" {
		cfg.ID = st.ID
	}
	if cfg.ID != st.ID {
		return nil, fmt.Errorf("%w: snapshot belongs to auction %s", ErrInvalidConfig, st.ID)
	}
	if !st.CurrentPhase.Valid() {
		return nil, fmt.Errorf("%w: snapshot phase %d", ErrInvalidConfig, st.CurrentPhase)
	}

	e, err := newEngine(cfg, pay, reg, opts)
	if err != nil {
		return nil, err
	}

	e.seq = st.Seq
	if st.Admin != (common.Address{}) {
		e.admin = st.Admin
	}
	e.phase = st.CurrentPhase
	e.winner = st.Winner
	e.finalized = st.Finalized
	e.proceedsWithdrawn = st.ProceedsWithdrawn
	e.paused = st.Paused
	e.feesCollected = st.FeesCollected
	e.phases = st.Phases

	for _, p := range st.Participants {
		entry := p
		e.ledger[p.Address] = &entry
		e.entries = append(e.entries, p.Address)
	}
	for _, a := range st.Bidders {
		if entry, ok := e.ledger[a]; ok && entry.CumulativeBid.Sign() > 0 {
			e.bidders.add(a)
		}
	}
	e.recomputeLeader()
	if e.finalized {
		// The winner's entry is frozen; the high bid is the one locked at
		// finalization even if the ledger scan disagrees after an emergency.
		e.leader = st.CurrentLeader
		e.highBid = st.CurrentHighBid
	}
	return e, nil
}

// recomputeLeader scans the bidder set in insertion order with a strict
// greater-than, so among equal totals the earliest entrant leads.
// Caller must hold e.mu.
func (e *Engine) recomputeLeader() {
	leader := common.Address{}
	high := decimal.Zero
	for _, a := range e.bidders.order {
		if bid := e.ledger[a].CumulativeBid; bid.GreaterThan(high) {
			leader = a
			high = bid
		}
	}
	e.leader = leader
	e.highBid = high
}

// emit stamps ev with sequence, phase and post-operation leader state and
// hands it to the sink. Caller must hold e.mu.
func (e *Engine) emit(ctx context.Context, ev model.Event) {
	e.seq++
	ev.AuctionID = e.cfg.ID
	ev.Seq = e.seq
	ev.Leader = e.leader
	ev.HighBid = e.highBid
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	if ev.Kind != model.EventPhaseAdvanced {
		ev.Phase = e.phase
	}
	if e.sink != nil {
		e.sink.Publish(ctx, ev)
	}
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin {
		return ErrUnauthorized
	}
	return nil
}

// --- Accessors ---

// ID returns the auction identifier.
func (e *Engine) ID() string { return e.cfg.ID }

// Config returns the immutable configuration.
func (e *Engine) Config() Config { return e.cfg }

// Rule returns the pricing rule.
func (e *Engine) Rule() *increment.Rule { return e.rule }

func (e *Engine) Phase() model.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Leader returns the current leader and high bid. The leader is the zero
// address when nobody holds a positive balance.
func (e *Engine) Leader() (common.Address, decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader, e.highBid
}

// HighBid returns the current high bid.
func (e *Engine) HighBid() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highBid
}

func (e *Engine) Winner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.winner
}

func (e *Engine) Finalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) Admin() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin
}

// BidOf returns a participant's cumulative bid; zero for unknown participants.
func (e *Engine) BidOf(participant common.Address) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.ledger[participant]; ok {
		return entry.CumulativeBid
	}
	return decimal.Zero
}

func (e *Engine) HasPaidFee(participant common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.ledger[participant]
	return ok && entry.HasPaidFee
}

// PhaseRecord returns the record of phase p.
func (e *Engine) PhaseRecord(p model.Phase) (model.PhaseRecord, error) {
	if !p.Valid() {
		return model.PhaseRecord{}, fmt.Errorf("auction: no phase %d", p)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phases[p], nil
}

// TimeRemaining returns how long until the current phase's minimum duration
// elapses, or zero once it has (or the auction is finalized).
func (e *Engine) TimeRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return 0
	}
	rec := e.phases[e.phase]
	if rem := rec.StartTime.Add(rec.MinDuration).Sub(e.now()); rem > 0 {
		return rem
	}
	return 0
}

func (e *Engine) BidderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bidders.len()
}

// Bidders returns the bidder set in insertion order.
func (e *Engine) Bidders() []model.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Participant, 0, e.bidders.len())
	for _, a := range e.bidders.order {
		out = append(out, *e.ledger[a])
	}
	return out
}

// FeesCollected returns the total participation fees forwarded to treasury.
func (e *Engine) FeesCollected() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feesCollected
}

// Seq returns the sequence number of the last emitted notification.
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// State returns a deep copy of the engine state.
func (e *Engine) State() *model.AuctionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &model.AuctionState{
		ID:                e.cfg.ID,
		Seq:               e.seq,
		Admin:             e.admin,
		CurrentPhase:      e.phase,
		CurrentLeader:     e.leader,
		CurrentHighBid:    e.highBid,
		Winner:            e.winner,
		Finalized:         e.finalized,
		ProceedsWithdrawn: e.proceedsWithdrawn,
		Paused:            e.paused,
		FeesCollected:     e.feesCollected,
		Phases:            e.phases,
		Participants:      make([]model.Participant, 0, len(e.entries)),
		Bidders:           e.bidders.list(),
		UpdatedAt:         e.now().UTC(),
	}
	for _, a := range e.entries {
		st.Participants = append(st.Participants, *e.ledger[a])
	}
	return st
}
