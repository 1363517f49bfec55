package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for auction snapshots. Writes go to the primary store first and then
// refresh the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveAuction(ctx context.Context, st *model.AuctionState) error {
	if err := s.primary.SaveAuction(ctx, st); err != nil {
		// A stale write means another replica moved ahead; drop our copy.
		s.rdb.Del(ctx, auctionKey(st.ID))
		return err
	}
	s.cacheAuction(ctx, st)
	return nil
}

func (s *CachedStore) AppendEvents(ctx context.Context, events []model.Event) error {
	return s.primary.AppendEvents(ctx, events)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadAuction(ctx context.Context, id string) (*model.AuctionState, error) {
	data, err := s.rdb.Get(ctx, auctionKey(id)).Bytes()
	if err == nil {
		var st model.AuctionState
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	// Cache miss: read from primary.
	st, err := s.primary.LoadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAuction(ctx, st)
	return st, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEvents(ctx context.Context, auctionID string, afterSeq uint64, limit int) ([]model.Event, error) {
	return s.primary.ListEvents(ctx, auctionID, afterSeq, limit)
}

func (s *CachedStore) ListParticipantEvents(ctx context.Context, auctionID string, participant common.Address) ([]model.Event, error) {
	return s.primary.ListParticipantEvents(ctx, auctionID, participant)
}

func (s *CachedStore) cacheAuction(ctx context.Context, st *model.AuctionState) {
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, auctionKey(st.ID), data, s.ttl)
	}
}

func auctionKey(id string) string { return fmt.Sprintf("auction:%s:state", id) }
