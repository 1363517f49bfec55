package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

// WithdrawProceeds sends the winning total to the treasury, once. The
// winner's ledger entry is left untouched as a historical record.
func (e *Engine) WithdrawProceeds(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !e.finalized {
		return ErrNotFinalized
	}
	if e.proceedsWithdrawn {
		return ErrAlreadyWithdrawn
	}

	e.proceedsWithdrawn = true
	if err := e.pay.Transfer(ctx, e.cfg.Treasury, e.highBid); err != nil {
		e.proceedsWithdrawn = false
		return fmt.Errorf("auction: transfer proceeds: %w", err)
	}

	e.emit(ctx, model.Event{
		Kind:        model.EventProceedsWithdrawn,
		Participant: e.winner,
		Amount:      e.highBid,
		Total:       e.highBid,
		Counterpart: e.cfg.Treasury,
	})

	e.logger.InfoContext(ctx, "proceeds withdrawn",
		"treasury", e.cfg.Treasury.Hex(),
		"amount", e.highBid.String(),
	)
	return nil
}

// Pause blocks bidding, phase advancement and finalization. Refund
// withdrawals stay open.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if e.paused {
		return ErrPaused
	}
	e.paused = true
	e.emit(ctx, model.Event{Kind: model.EventPaused, Participant: caller})
	e.logger.WarnContext(ctx, "auction paused", "by", caller.Hex())
	return nil
}

func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !e.paused {
		return ErrNotPaused
	}
	e.paused = false
	e.emit(ctx, model.Event{Kind: model.EventUnpaused, Participant: caller})
	e.logger.InfoContext(ctx, "auction unpaused", "by", caller.Hex())
	return nil
}

// TransferAdmin hands the administrative identity to newAdmin.
func (e *Engine) TransferAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == (common.Address{}) {
		return ErrZeroAddress
	}
	e.admin = newAdmin
	e.emit(ctx, model.Event{
		Kind:        model.EventAdminTransferred,
		Participant: caller,
		Counterpart: newAdmin,
	})
	e.logger.InfoContext(ctx, "admin transferred", "from", caller.Hex(), "to", newAdmin.Hex())
	return nil
}

// EmergencyWithdrawFunds moves the engine's entire custody balance to the
// administrator. It requires the engine to be paused and leaves the ledger
// untouched, so refunds recorded there are no longer backed.
func (e *Engine) EmergencyWithdrawFunds(ctx context.Context, caller common.Address) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return decimal.Zero, err
	}
	if !e.paused {
		return decimal.Zero, ErrNotPaused
	}

	balance, err := e.pay.BalanceOf(ctx, e.cfg.Self)
	if err != nil {
		return decimal.Zero, fmt.Errorf("auction: query custody balance: %w", err)
	}
	if balance.Sign() <= 0 {
		return decimal.Zero, ErrNothingToWithdraw
	}
	if err := e.pay.Transfer(ctx, e.admin, balance); err != nil {
		return decimal.Zero, fmt.Errorf("auction: emergency transfer: %w", err)
	}

	e.emit(ctx, model.Event{
		Kind:        model.EventEmergencyFunds,
		Participant: caller,
		Amount:      balance,
		Counterpart: e.admin,
	})
	e.logger.WarnContext(ctx, "emergency funds withdrawal",
		"to", e.admin.Hex(),
		"amount", balance.String(),
	)
	return balance, nil
}

// EmergencyWithdrawItem returns the escrowed item to the administrator. It
// requires the engine to be paused and not finalized.
func (e *Engine) EmergencyWithdrawItem(ctx context.Context, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if !e.paused {
		return ErrNotPaused
	}
	if e.finalized {
		return ErrAlreadyFinalized
	}
	if err := e.reg.TransferItem(ctx, e.cfg.TokenID, e.admin); err != nil {
		return fmt.Errorf("auction: emergency item transfer: %w", err)
	}

	e.emit(ctx, model.Event{
		Kind:        model.EventEmergencyItem,
		Participant: caller,
		Counterpart: e.admin,
	})
	e.logger.WarnContext(ctx, "emergency item withdrawal",
		"to", e.admin.Hex(),
		"token_id", e.cfg.TokenID,
	)
	return nil
}
