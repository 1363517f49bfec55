package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/auction-engine/internal/model"
)

// BlobWriter stores one object.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// EventSource reads the notification log. store.Store satisfies it.
type EventSource interface {
	ListEvents(ctx context.Context, auctionID string, afterSeq uint64, limit int) ([]model.Event, error)
}

// Result describes one archive run.
type Result struct {
	EventsPath   string `json:"events_path"`
	SnapshotPath string `json:"snapshot_path"`
	Events       int    `json:"events"`
	Seq          uint64 `json:"seq"`
}

// Archiver writes an auction's log as JSON lines plus its snapshot as JSON
// under <prefix>/<auction id>/. Each run gets its own object names, so
// earlier archives are never overwritten.
type Archiver struct {
	writer BlobWriter
	events EventSource
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

func NewArchiver(writer BlobWriter, events EventSource, prefix string, logger *slog.Logger) *Archiver {
	if prefix == "" {
		prefix = "archive/auctions"
	}
	return &Archiver{
		writer: writer,
		events: events,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With("component", "archive"),
	}
}

// Archive uploads every notification up to st.Seq and the snapshot itself.
func (a *Archiver) Archive(ctx context.Context, st *model.AuctionState) (*Result, error) {
	events, err := a.events.ListEvents(ctx, st.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("archive: list events %s: %w", st.ID, err)
	}
	// Drop anything that raced in after the snapshot was taken.
	n := len(events)
	for n > 0 && events[n-1].Seq > st.Seq {
		n--
	}
	events = events[:n]

	lines, err := marshalJSONL(events)
	if err != nil {
		return nil, fmt.Errorf("archive: encode events %s: %w", st.ID, err)
	}
	snapshot, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode snapshot %s: %w", st.ID, err)
	}

	stamp := fmt.Sprintf("%s-%d-%s", a.now().UTC().Format("20060102T150405Z"), st.Seq, uuid.New().String()[:8])
	res := &Result{
		EventsPath:   path.Join(a.prefix, st.ID, stamp+"-events.jsonl"),
		SnapshotPath: path.Join(a.prefix, st.ID, stamp+"-state.json"),
		Events:       len(events),
		Seq:          st.Seq,
	}

	if err := a.writer.Put(ctx, res.EventsPath, bytes.NewReader(lines), "application/x-ndjson"); err != nil {
		return nil, fmt.Errorf("archive: upload events: %w", err)
	}
	if err := a.writer.Put(ctx, res.SnapshotPath, bytes.NewReader(snapshot), "application/json"); err != nil {
		return nil, fmt.Errorf("archive: upload snapshot: %w", err)
	}

	a.logger.InfoContext(ctx, "auction archived",
		"auction_id", st.ID,
		"events", res.Events,
		"seq", res.Seq,
		"path", res.EventsPath,
	)
	return res, nil
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
