package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func ev(seq uint64, who common.Address, kind model.EventKind) model.Event {
	return model.Event{AuctionID: "a1", Seq: seq, Kind: kind, Participant: who, Amount: decimal.NewFromInt(int64(seq) * 100)}
}

func TestMemoryStoreSnapshots(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := s.LoadAuction(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st := &model.AuctionState{ID: "a1", Seq: 3, Bidders: []common.Address{alice}}
	if err := s.SaveAuction(ctx, st); err != nil {
		t.Fatalf("SaveAuction: %v", err)
	}

	// Stored copy is isolated from the caller's slices.
	st.Bidders[0] = bob
	got, err := s.LoadAuction(ctx, "a1")
	if err != nil {
		t.Fatalf("LoadAuction: %v", err)
	}
	if got.Bidders[0] != alice {
		t.Errorf("stored snapshot mutated through caller slice")
	}

	if err := s.SaveAuction(ctx, &model.AuctionState{ID: "a1", Seq: 2}); !errors.Is(err, store.ErrStaleSnapshot) {
		t.Errorf("expected ErrStaleSnapshot, got %v", err)
	}
	if err := s.SaveAuction(ctx, &model.AuctionState{ID: "a1", Seq: 3}); err != nil {
		t.Errorf("same-seq save should succeed: %v", err)
	}
}

func TestMemoryStoreEventLog(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	err := s.AppendEvents(ctx, []model.Event{
		ev(2, bob, model.EventBidPlaced),
		ev(1, alice, model.EventBidPlaced),
		ev(3, alice, model.EventBidWithdrawn),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Duplicate append is ignored.
	if err := s.AppendEvents(ctx, []model.Event{ev(2, bob, model.EventBidPlaced)}); err != nil {
		t.Fatal(err)
	}

	all, _ := s.ListEvents(ctx, "a1", 0, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	for i, e := range all {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d has seq %d", i, e.Seq)
		}
	}

	after, _ := s.ListEvents(ctx, "a1", 1, 1)
	if len(after) != 1 || after[0].Seq != 2 {
		t.Errorf("ListEvents(after=1, limit=1) = %+v", after)
	}

	mine, _ := s.ListParticipantEvents(ctx, "a1", alice)
	if len(mine) != 2 || mine[0].Seq != 1 || mine[1].Seq != 3 {
		t.Errorf("ListParticipantEvents = %+v", mine)
	}

	none, _ := s.ListEvents(ctx, "other", 0, 0)
	if len(none) != 0 {
		t.Errorf("expected no events for unknown auction")
	}
}
