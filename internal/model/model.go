// Package model defines the core domain types shared across the auction engine.
// All monetary values are whole base units held in shopspring/decimal.
// Identities are Ethereum-style addresses; the zero address means "nobody".
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Phase is one of the three sequential bidding windows.
type Phase uint8

const (
	Phase0 Phase = iota
	Phase1
	Phase2
)

// PhaseCount is the number of bidding windows in every auction.
const PhaseCount = 3

// Last reports whether p is the final bidding window.
func (p Phase) Last() bool { return p == Phase2 }

// Valid reports whether p names one of the three bidding windows.
func (p Phase) Valid() bool { return p < PhaseCount }

// PhaseRecord holds the timing of one phase and, once revealed, the permanent
// snapshot of who led it and at what total.
type PhaseRecord struct {
	MinDuration   time.Duration   `json:"min_duration"`
	StartTime     time.Time       `json:"start_time"`
	LockedLeader  common.Address  `json:"locked_leader"`
	LockedHighBid decimal.Decimal `json:"locked_high_bid"`
	Revealed      bool            `json:"revealed"`
}

// Participant is one row of the bid ledger. Entries persist at zero after a
// full withdrawal so the participant can re-enter.
type Participant struct {
	Address       common.Address  `json:"address"`
	CumulativeBid decimal.Decimal `json:"cumulative_bid"`
	HasPaidFee    bool            `json:"has_paid_fee"`
}

// AuctionState is a complete, serializable snapshot of one engine instance.
// Seq is the sequence number of the last notification emitted, which makes
// snapshots totally ordered.
type AuctionState struct {
	ID                string                  `json:"id"`
	Seq               uint64                  `json:"seq"`
	Admin             common.Address          `json:"admin"`
	CurrentPhase      Phase                   `json:"current_phase"`
	CurrentLeader     common.Address          `json:"current_leader"`
	CurrentHighBid    decimal.Decimal         `json:"current_high_bid"`
	Winner            common.Address          `json:"winner"`
	Finalized         bool                    `json:"finalized"`
	ProceedsWithdrawn bool                    `json:"proceeds_withdrawn"`
	Paused            bool                    `json:"paused"`
	FeesCollected     decimal.Decimal         `json:"fees_collected"`
	Phases            [PhaseCount]PhaseRecord `json:"phases"`
	Participants      []Participant           `json:"participants"`
	Bidders           []common.Address        `json:"bidders"` // insertion order
	UpdatedAt         time.Time               `json:"updated_at"`
}

// EventKind names a domain notification.
type EventKind string

const (
	EventBidPlaced         EventKind = "bid_placed"
	EventBidWithdrawn      EventKind = "bid_withdrawn"
	EventFeePaid           EventKind = "fee_paid"
	EventPhaseAdvanced     EventKind = "phase_advanced"
	EventAuctionFinalized  EventKind = "auction_finalized"
	EventProceedsWithdrawn EventKind = "proceeds_withdrawn"
	EventPaused            EventKind = "paused"
	EventUnpaused          EventKind = "unpaused"
	EventAdminTransferred  EventKind = "admin_transferred"
	EventEmergencyFunds    EventKind = "emergency_funds_withdrawn"
	EventEmergencyItem     EventKind = "emergency_item_withdrawn"
)

// Event is an immutable notification emitted by a successful state-mutating
// operation. It carries enough to rebuild the ledger from a log without
// querying the engine: the participant's new total and the leader/high bid
// after the operation.
type Event struct {
	AuctionID   string          `json:"auction_id"`
	Seq         uint64          `json:"seq"`
	Kind        EventKind       `json:"kind"`
	Phase       Phase           `json:"phase"`
	Participant common.Address  `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`      // incremental amount, refund, fee or transfer
	Total       decimal.Decimal `json:"total"`       // participant's cumulative bid afterwards
	Leader      common.Address  `json:"leader"`      // leader afterwards
	HighBid     decimal.Decimal `json:"high_bid"`    // high bid afterwards
	Counterpart common.Address  `json:"counterpart"` // treasury, new admin or item recipient
	Timestamp   time.Time       `json:"timestamp"`
}
