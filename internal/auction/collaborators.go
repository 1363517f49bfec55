package auction

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

// PaymentCustody moves the payment asset. Implementations are bound to the
// engine's custody identity: Transfer sends from custody, TransferFrom pulls
// from a participant who has authorized the engine to spend on their behalf.
// Any error aborts the calling operation.
type PaymentCustody interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount decimal.Decimal) error
	Transfer(ctx context.Context, to common.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, who common.Address) (decimal.Decimal, error)
}

// CollectibleRegistry holds the auctioned item. TransferItem moves the item
// out of the engine's custody.
type CollectibleRegistry interface {
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)
	TransferItem(ctx context.Context, tokenID uint64, to common.Address) error
}

// EventSink receives every notification in emission order. Publish is called
// while the engine is locked, so implementations must not call back into it.
type EventSink interface {
	Publish(ctx context.Context, ev model.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev model.Event)

func (f EventSinkFunc) Publish(ctx context.Context, ev model.Event) { f(ctx, ev) }
