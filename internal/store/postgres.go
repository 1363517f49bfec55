package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The full snapshot lives in a JSONB column next to a few queryable fields.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded SQL migrations in lexicographic order and
// records them in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx for %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveAuction(ctx context.Context, st *model.AuctionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("postgres: marshal auction %s: %w", st.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, seq, phase, leader, high_bid, finalized, paused, state, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET seq = EXCLUDED.seq, phase = EXCLUDED.phase, leader = EXCLUDED.leader,
		     high_bid = EXCLUDED.high_bid, finalized = EXCLUDED.finalized,
		     paused = EXCLUDED.paused, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
		 WHERE auctions.seq <= EXCLUDED.seq`,
		st.ID, int64(st.Seq), int16(st.CurrentPhase), st.CurrentLeader.Hex(),
		st.CurrentHighBid.String(), st.Finalized, st.Paused, data, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save auction %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: auction %s seq %d", ErrStaleSnapshot, st.ID, st.Seq)
	}
	return nil
}

func (s *PostgresStore) LoadAuction(ctx context.Context, id string) (*model.AuctionState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM auctions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load auction %s: %w", id, err)
	}

	var st model.AuctionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("postgres: decode auction %s: %w", id, err)
	}
	return &st, nil
}

func (s *PostgresStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(
			`INSERT INTO auction_events
			   (auction_id, seq, kind, phase, participant, amount, total, leader, high_bid, counterpart, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9::NUMERIC, $10, $11)
			 ON CONFLICT (auction_id, seq) DO NOTHING`,
			ev.AuctionID, int64(ev.Seq), string(ev.Kind), int16(ev.Phase),
			ev.Participant.Hex(), ev.Amount.String(), ev.Total.String(),
			ev.Leader.Hex(), ev.HighBid.String(), ev.Counterpart.Hex(), ev.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, ev := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: append event %s/%d: %w", ev.AuctionID, ev.Seq, err)
		}
	}
	return nil
}

const eventColumns = `auction_id, seq, kind, phase, participant,
		        amount::TEXT, total::TEXT, leader, high_bid::TEXT, counterpart, created_at`

func (s *PostgresStore) ListEvents(ctx context.Context, auctionID string, afterSeq uint64, limit int) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + `
		 FROM auction_events WHERE auction_id = $1 AND seq > $2 ORDER BY seq`
	args := []any{auctionID, int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events %s: %w", auctionID, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListParticipantEvents(ctx context.Context, auctionID string, participant common.Address) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM auction_events WHERE auction_id = $1 AND participant = $2 ORDER BY seq`,
		auctionID, participant.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list events %s for %s: %w", auctionID, participant.Hex(), err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// pgxRows is the subset of pgx.Rows scanEvents needs.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows pgxRows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var (
			ev                                     model.Event
			seq                                    int64
			phase                                  int16
			kind, participant, leader, counterpart string
			amountS, totalS, highS                 string
		)
		if err := rows.Scan(&ev.AuctionID, &seq, &kind, &phase, &participant,
			&amountS, &totalS, &leader, &highS, &counterpart, &ev.Timestamp); err != nil {
			return nil, err
		}

		ev.Seq = uint64(seq)
		ev.Kind = model.EventKind(kind)
		ev.Phase = model.Phase(phase)
		ev.Participant = common.HexToAddress(participant)
		ev.Leader = common.HexToAddress(leader)
		ev.Counterpart = common.HexToAddress(counterpart)
		for _, f := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"amount", amountS, &ev.Amount},
			{"total", totalS, &ev.Total},
			{"high_bid", highS, &ev.HighBid},
		} {
			v, err := decimal.NewFromString(f.raw)
			if err != nil {
				return nil, fmt.Errorf("store: event %s/%d %s %q: %w", ev.AuctionID, seq, f.name, f.raw, err)
			}
			*f.dst = v
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}
