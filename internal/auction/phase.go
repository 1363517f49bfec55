package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

// lockPhase copies the current leader and high bid into phase p's record and
// marks it revealed. Caller must hold e.mu.
func (e *Engine) lockPhase(p model.Phase) {
	rec := &e.phases[p]
	rec.LockedLeader = e.leader
	rec.LockedHighBid = e.highBid
	rec.Revealed = true
}

// checkElapsed returns ErrDurationNotElapsed if the current phase's minimum
// duration has not passed. Caller must hold e.mu.
func (e *Engine) checkElapsed() error {
	rec := e.phases[e.phase]
	end := rec.StartTime.Add(rec.MinDuration)
	if now := e.now(); now.Before(end) {
		return fmt.Errorf("%w: phase %d ends in %s", ErrDurationNotElapsed, e.phase, end.Sub(now))
	}
	return nil
}

// AdvancePhase locks the outcome of phase 0 or 1 and starts the next phase.
// Bidding stays open in the new phase.
func (e *Engine) AdvancePhase(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.finalized {
		return ErrAlreadyFinalized
	}
	if e.paused {
		return ErrPaused
	}
	if e.phase.Last() {
		return fmt.Errorf("%w: phase %d is the last phase, finalize instead", ErrStateClosed, e.phase)
	}
	if err := e.checkElapsed(); err != nil {
		return err
	}

	locked := e.phase
	e.lockPhase(locked)
	e.phase++
	e.phases[e.phase].StartTime = e.now()

	rec := e.phases[locked]
	e.emit(ctx, model.Event{
		Kind:        model.EventPhaseAdvanced,
		Phase:       e.phase,
		Participant: rec.LockedLeader,
		Amount:      rec.LockedHighBid,
		Total:       rec.LockedHighBid,
	})

	e.logger.InfoContext(ctx, "phase advanced",
		"locked_phase", locked,
		"locked_leader", rec.LockedLeader.Hex(),
		"locked_high_bid", rec.LockedHighBid.String(),
		"phase", e.phase,
	)
	return nil
}

// FinalizeAuction locks phase 2, fixes the winner and transfers the item to
// them. If the item transfer fails, the engine is left exactly as before.
func (e *Engine) FinalizeAuction(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.finalized {
		return ErrAlreadyFinalized
	}
	if e.paused {
		return ErrPaused
	}
	if !e.phase.Last() {
		return fmt.Errorf("%w: finalization requires phase %d, auction is in phase %d", ErrStateClosed, model.Phase2, e.phase)
	}
	if err := e.checkElapsed(); err != nil {
		return err
	}
	if e.leader == (common.Address{}) {
		return ErrNoEligibleWinner
	}

	prev := e.phases[e.phase]
	e.lockPhase(e.phase)
	e.winner = e.leader
	e.finalized = true

	if err := e.reg.TransferItem(ctx, e.cfg.TokenID, e.winner); err != nil {
		e.phases[e.phase] = prev
		e.winner = common.Address{}
		e.finalized = false
		e.logger.ErrorContext(ctx, "item transfer failed",
			"token_id", e.cfg.TokenID,
			"winner", e.leader.Hex(),
			"err", err,
		)
		return fmt.Errorf("auction: transfer item: %w", err)
	}

	e.emit(ctx, model.Event{
		Kind:        model.EventAuctionFinalized,
		Participant: e.winner,
		Amount:      e.highBid,
		Total:       e.highBid,
		Counterpart: e.winner,
	})

	e.logger.InfoContext(ctx, "auction finalized",
		"winner", e.winner.Hex(),
		"high_bid", e.highBid.String(),
		"token_id", e.cfg.TokenID,
	)
	return nil
}
