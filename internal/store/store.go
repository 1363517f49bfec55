// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// snapshot cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")

	// ErrStaleSnapshot is returned by SaveAuction when the stored snapshot
	// already has a higher sequence number than the one being written.
	ErrStaleSnapshot = errors.New("store: snapshot older than stored copy")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Auction snapshots ---

	// SaveAuction upserts the snapshot unless a newer one is stored.
	SaveAuction(ctx context.Context, st *model.AuctionState) error

	// LoadAuction returns the latest snapshot or ErrNotFound.
	LoadAuction(ctx context.Context, id string) (*model.AuctionState, error)

	// --- Append-only notification log ---

	// AppendEvents stores notifications. Re-appending a (auction, seq) pair
	// that is already stored is a no-op.
	AppendEvents(ctx context.Context, events []model.Event) error

	// ListEvents returns notifications with Seq > afterSeq in sequence
	// order. limit <= 0 means no limit.
	ListEvents(ctx context.Context, auctionID string, afterSeq uint64, limit int) ([]model.Event, error)

	// ListParticipantEvents returns one participant's notifications in
	// sequence order.
	ListParticipantEvents(ctx context.Context, auctionID string, participant common.Address) ([]model.Event, error)
}
