package bidding_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atmx/auction-engine/internal/archive"
	"github.com/atmx/auction-engine/internal/bidding"
	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

// slowStore delays event appends, as a remote database would.
type slowStore struct {
	*store.MemoryStore
	delay time.Duration
}

func (s *slowStore) AppendEvents(ctx context.Context, events []model.Event) error {
	time.Sleep(s.delay)
	return s.MemoryStore.AppendEvents(ctx, events)
}

type blobRecorder struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *blobRecorder) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	return nil
}

// waitFor polls until an object with the given suffix is written.
func (b *blobRecorder) waitFor(t *testing.T, suffix string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		for path, raw := range b.objects {
			if strings.HasSuffix(path, suffix) {
				b.mu.Unlock()
				return raw
			}
		}
		b.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s object archived", suffix)
	return nil
}

func TestFinalizeArchivesFinalizationEvent(t *testing.T) {
	tok, coll := fundedCustody(t)
	slow := &slowStore{MemoryStore: store.NewMemoryStore(), delay: 100 * time.Millisecond}
	blobs := &blobRecorder{objects: map[string][]byte{}}
	env := newReplicaWith(t, tok, coll, slow.MemoryStore, startClock(), func(o *bidding.Options) {
		o.Store = slow
		o.Archiver = archive.NewArchiver(blobs, slow, "auctions", quietLogger())
	})

	if w := env.bid(t, alice, 1000); w.Code != http.StatusOK {
		t.Fatalf("bid: %d %s", w.Code, w.Body.String())
	}
	for i := 0; i < 2; i++ {
		env.clock.Advance(time.Hour)
		if w := env.do(t, "POST", "/api/v1/admin/advance", admin, nil); w.Code != http.StatusOK {
			t.Fatalf("advance %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	env.clock.Advance(time.Hour)
	if w := env.do(t, "POST", "/api/v1/admin/finalize", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("finalize: %d %s", w.Code, w.Body.String())
	}

	var kinds []model.EventKind
	sc := bufio.NewScanner(bytes.NewReader(blobs.waitFor(t, "-events.jsonl")))
	for sc.Scan() {
		var ev model.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("decode archived event: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) == 0 || kinds[len(kinds)-1] != model.EventAuctionFinalized {
		t.Fatalf("archive does not end with %s: %v", model.EventAuctionFinalized, kinds)
	}

	var snap model.AuctionState
	if err := json.Unmarshal(blobs.waitFor(t, "-state.json"), &snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Finalized || snap.Seq != uint64(len(kinds)) {
		t.Errorf("snapshot finalized=%v seq=%d, archived %d events", snap.Finalized, snap.Seq, len(kinds))
	}
}
