package auction

import "github.com/ethereum/go-ethereum/common"

// bidderSet is an insertion-ordered set of participants with a positive
// balance. Order matters: the leader scan breaks ties by first insertion.
type bidderSet struct {
	order []common.Address
	index map[common.Address]struct{}
}

func newBidderSet() *bidderSet {
	return &bidderSet{index: make(map[common.Address]struct{})}
}

func (s *bidderSet) contains(a common.Address) bool {
	_, ok := s.index[a]
	return ok
}

// add appends a at the end. It is a no-op if a is present.
func (s *bidderSet) add(a common.Address) {
	if s.contains(a) {
		return
	}
	s.index[a] = struct{}{}
	s.order = append(s.order, a)
}

// remove deletes a and returns the position it occupied, or -1.
func (s *bidderSet) remove(a common.Address) int {
	if !s.contains(a) {
		return -1
	}
	delete(s.index, a)
	for i, b := range s.order {
		if b == a {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return i
		}
	}
	return -1
}

// insertAt puts a back at position i. Used to undo a remove.
func (s *bidderSet) insertAt(i int, a common.Address) {
	if s.contains(a) || i < 0 || i > len(s.order) {
		return
	}
	s.index[a] = struct{}{}
	s.order = append(s.order, common.Address{})
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = a
}

func (s *bidderSet) len() int { return len(s.order) }

func (s *bidderSet) list() []common.Address {
	out := make([]common.Address, len(s.order))
	copy(out, s.order)
	return out
}
