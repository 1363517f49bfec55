package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*model.AuctionState
	events   map[string][]model.Event // per auction, ascending Seq
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*model.AuctionState),
		events:   make(map[string][]model.Event),
	}
}

func (s *MemoryStore) SaveAuction(_ context.Context, st *model.AuctionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.auctions[st.ID]; ok && existing.Seq > st.Seq {
		return fmt.Errorf("%w: auction %s at seq %d, got %d", ErrStaleSnapshot, st.ID, existing.Seq, st.Seq)
	}
	s.auctions[st.ID] = cloneState(st)
	return nil
}

func (s *MemoryStore) LoadAuction(_ context.Context, id string) (*model.AuctionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, id)
	}
	return cloneState(st), nil
}

func (s *MemoryStore) AppendEvents(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		log := s.events[ev.AuctionID]
		i := sort.Search(len(log), func(i int) bool { return log[i].Seq >= ev.Seq })
		if i < len(log) && log[i].Seq == ev.Seq {
			continue
		}
		log = append(log, model.Event{})
		copy(log[i+1:], log[i:])
		log[i] = ev
		s.events[ev.AuctionID] = log
	}
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, auctionID string, afterSeq uint64, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.events[auctionID]
	i := sort.Search(len(log), func(i int) bool { return log[i].Seq > afterSeq })
	out := append([]model.Event(nil), log[i:]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListParticipantEvents(_ context.Context, auctionID string, participant common.Address) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, ev := range s.events[auctionID] {
		if ev.Participant == participant {
			result = append(result, ev)
		}
	}
	return result, nil
}

// cloneState copies the slices so callers cannot mutate stored state.
func cloneState(st *model.AuctionState) *model.AuctionState {
	c := *st
	c.Participants = append([]model.Participant(nil), st.Participants...)
	c.Bidders = append([]common.Address(nil), st.Bidders...)
	return &c
}
