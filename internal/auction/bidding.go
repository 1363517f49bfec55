package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/increment"
	"github.com/atmx/auction-engine/internal/model"
)

// PlaceBid adds amount to the participant's cumulative bid.
//
// On a participant's first bid the participation fee, if configured, is
// pulled together with the bid and forwarded to the treasury. The fee flag is
// never reset, so a participant who withdraws and re-enters does not pay again.
// The fee is not part of the cumulative bid.
//
// Value moves into custody before any state changes; if the fee forward to
// the treasury fails, the pulled amount is returned and the bid is rejected.
func (e *Engine) PlaceBid(ctx context.Context, participant common.Address, amount decimal.Decimal) error {
	if participant == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := increment.ValidateAmount(amount); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return ErrPaused
	}
	if e.finalized || !e.phase.Valid() {
		return ErrStateClosed
	}

	entry := e.ledger[participant]
	existing := decimal.Zero
	if entry != nil {
		existing = entry.CumulativeBid
	}
	fee := e.cfg.ParticipationFee
	feeDue := fee.Sign() > 0 && (entry == nil || !entry.HasPaidFee)

	newTotal := existing.Add(amount)
	isLeader := e.leader != (common.Address{}) && participant == e.leader
	if err := e.rule.Check(newTotal, e.highBid, isLeader); err != nil {
		e.logger.DebugContext(ctx, "bid rejected",
			"participant", participant.Hex(),
			"amount", amount.String(),
			"total", newTotal.String(),
			"high_bid", e.highBid.String(),
			"err", err,
		)
		return err
	}

	pull := amount
	if feeDue {
		pull = pull.Add(fee)
	}
	if err := e.pay.TransferFrom(ctx, participant, e.cfg.Self, pull); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientAuthorization, err)
	}
	if feeDue {
		if err := e.pay.Transfer(ctx, e.cfg.Treasury, fee); err != nil {
			if rerr := e.pay.Transfer(ctx, participant, pull); rerr != nil {
				e.logger.ErrorContext(ctx, "return of pulled bid failed",
					"participant", participant.Hex(),
					"amount", pull.String(),
					"err", rerr,
				)
			}
			return fmt.Errorf("%w: forward fee: %w", ErrInsufficientAuthorization, err)
		}
	}

	if entry == nil {
		entry = &model.Participant{Address: participant, CumulativeBid: decimal.Zero}
		e.ledger[participant] = entry
		e.entries = append(e.entries, participant)
	}
	if feeDue {
		entry.HasPaidFee = true
		e.feesCollected = e.feesCollected.Add(fee)
	}
	entry.CumulativeBid = newTotal
	e.bidders.add(participant)
	e.recomputeLeader()

	if feeDue {
		e.emit(ctx, model.Event{
			Kind:        model.EventFeePaid,
			Participant: participant,
			Amount:      fee,
			Total:       newTotal,
			Counterpart: e.cfg.Treasury,
		})
	}
	e.emit(ctx, model.Event{
		Kind:        model.EventBidPlaced,
		Participant: participant,
		Amount:      amount,
		Total:       newTotal,
	})

	e.logger.InfoContext(ctx, "bid placed",
		"participant", participant.Hex(),
		"amount", amount.String(),
		"total", newTotal.String(),
		"phase", e.phase,
		"leader", e.leader.Hex(),
		"high_bid", e.highBid.String(),
		"fee_paid", feeDue,
	)
	return nil
}

// WithdrawBid refunds the participant's entire cumulative bid and removes
// them from the bidder set. They may bid again later from zero.
//
// Withdrawal is permitted while paused. After finalization the winner can
// never withdraw; every other participant still can.
func (e *Engine) WithdrawBid(ctx context.Context, participant common.Address) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized && participant == e.winner {
		return decimal.Zero, ErrAlreadyFinalized
	}
	entry := e.ledger[participant]
	if entry == nil || entry.CumulativeBid.Sign() <= 0 {
		return decimal.Zero, ErrNothingToWithdraw
	}

	refund := entry.CumulativeBid
	prevLeader, prevHigh := e.leader, e.highBid

	entry.CumulativeBid = decimal.Zero
	pos := e.bidders.remove(participant)
	if !e.finalized {
		e.recomputeLeader()
	}

	if err := e.pay.Transfer(ctx, participant, refund); err != nil {
		entry.CumulativeBid = refund
		e.bidders.insertAt(pos, participant)
		e.leader, e.highBid = prevLeader, prevHigh
		e.logger.ErrorContext(ctx, "refund transfer failed",
			"participant", participant.Hex(),
			"amount", refund.String(),
			"err", err,
		)
		return decimal.Zero, fmt.Errorf("auction: refund transfer: %w", err)
	}

	e.emit(ctx, model.Event{
		Kind:        model.EventBidWithdrawn,
		Participant: participant,
		Amount:      refund,
		Total:       decimal.Zero,
	})

	e.logger.InfoContext(ctx, "bid withdrawn",
		"participant", participant.Hex(),
		"amount", refund.String(),
		"leader", e.leader.Hex(),
		"high_bid", e.highBid.String(),
	)
	return refund, nil
}
