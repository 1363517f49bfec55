// Package bidding exposes the auction engine over HTTP and WebSocket.
//
// Every mutating request runs inside one critical section per auction: the
// process mutex plus a Locker shared across replicas. Before the operation
// the engine is reloaded if the store holds a newer snapshot; afterwards the
// new snapshot and its notifications are persisted and then broadcast.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/archive"
	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/custody"
	"github.com/atmx/auction-engine/internal/lock"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

// RestoreFunc rebuilds an engine from a stored snapshot. The returned engine
// must publish to the same Dispatcher.
type RestoreFunc func(st *model.AuctionState) (*auction.Engine, error)

// Options configures a Service. Only Store is required.
type Options struct {
	Store    store.Store
	Locker   lock.Locker       // defaults to an in-process lock
	Restore  RestoreFunc       // nil disables reloading from the store
	Archiver *archive.Archiver // nil disables archiving
	Token    *custody.Token    // non-nil enables the custody endpoints
	LockWait time.Duration     // how long a request waits for the lock
	Logger   *slog.Logger
}

// Service handles auction requests.
type Service struct {
	mu   sync.Mutex
	eng  *auction.Engine
	disp *Dispatcher

	store    store.Store
	locker   lock.Locker
	restore  RestoreFunc
	archiver *archive.Archiver
	token    *custody.Token
	lockWait time.Duration
	logger   *slog.Logger
}

// NewService wraps eng, which must have been built with disp as its sink.
func NewService(eng *auction.Engine, disp *Dispatcher, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		eng:      eng,
		disp:     disp,
		store:    opts.Store,
		locker:   opts.Locker,
		restore:  opts.Restore,
		archiver: opts.Archiver,
		token:    opts.Token,
		lockWait: opts.LockWait,
		logger:   opts.Logger.With("component", "bidding", "auction_id", eng.ID()),
	}
}

// Init persists the engine's current snapshot if the store has none, and
// otherwise adopts the stored one when it is newer.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.LoadAuction(ctx, s.eng.ID()); errors.Is(err, store.ErrNotFound) {
		if err := s.store.SaveAuction(ctx, s.eng.State()); err != nil {
			return fmt.Errorf("bidding: save initial snapshot: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("bidding: load snapshot: %w", err)
	}
	if err := s.syncLocked(ctx); err != nil {
		return err
	}
	s.refreshGauges()
	return nil
}

// Engine returns the current engine, reloading it first if another replica
// has moved the auction forward.
func (s *Service) Engine(ctx context.Context) *auction.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.syncLocked(ctx); err != nil {
		s.logger.WarnContext(ctx, "serving possibly stale state", "err", err)
	}
	return s.eng
}

// syncLocked swaps in a newer stored snapshot. Caller must hold s.mu.
func (s *Service) syncLocked(ctx context.Context) error {
	if s.restore == nil {
		return nil
	}
	st, err := s.store.LoadAuction(ctx, s.eng.ID())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bidding: load snapshot: %w", err)
	}
	if st.Seq <= s.eng.Seq() {
		return nil
	}
	eng, err := s.restore(st)
	if err != nil {
		return fmt.Errorf("bidding: restore snapshot %d: %w", st.Seq, err)
	}
	s.logger.InfoContext(ctx, "engine reloaded from store", "from_seq", s.eng.Seq(), "to_seq", st.Seq)
	s.eng = eng
	return nil
}

// mutate runs fn inside the auction's critical section and persists and
// broadcasts whatever it emitted. fn's error is returned unchanged.
func (s *Service) mutate(ctx context.Context, op string, fn func(*auction.Engine) error) error {
	start := time.Now()
	defer func() {
		metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	unlock, err := lock.Acquire(lockCtx, s.locker, "auction:"+s.eng.ID(), 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer unlock()

	if err := s.syncLocked(ctx); err != nil {
		return err
	}

	s.disp.take()
	opErr := fn(s.eng)
	events := s.disp.take()
	if len(events) == 0 {
		return opErr
	}

	// Value has already moved; persistence must finish even if the client left.
	pctx := context.WithoutCancel(ctx)
	if err := s.store.SaveAuction(pctx, s.eng.State()); err != nil {
		metrics.SinkErrors.WithLabelValues("store").Inc()
		s.logger.ErrorContext(ctx, "snapshot save failed", "op", op, "seq", s.eng.Seq(), "err", err)
	}
	if err := s.store.AppendEvents(pctx, events); err != nil {
		metrics.SinkErrors.WithLabelValues("store").Inc()
		s.logger.ErrorContext(ctx, "event append failed", "op", op, "events", len(events), "err", err)
	}
	s.disp.Deliver(pctx, events)
	s.refreshGauges()
	return opErr
}

func (s *Service) refreshGauges() {
	metrics.Bidders.Set(float64(s.eng.BidderCount()))
	metrics.Phase.Set(float64(s.eng.Phase()))
	_, high := s.eng.Leader()
	metrics.HighBid.Set(high.InexactFloat64())
}

// ArchiveNow uploads the notification log and snapshot. Admin only.
func (s *Service) ArchiveNow(ctx context.Context, caller common.Address) (*archive.Result, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	eng := s.Engine(ctx)
	if caller != eng.Admin() {
		return nil, auction.ErrUnauthorized
	}
	return s.archiver.Archive(ctx, eng.State())
}

// archiveInBackground archives a finalized auction without holding up the
// finalizing request.
func (s *Service) archiveInBackground(st *model.AuctionState) {
	if s.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.archiver.Archive(ctx, st); err != nil {
			s.logger.Error("archive after finalization failed", "seq", st.Seq, "err", err)
		}
	}()
}
