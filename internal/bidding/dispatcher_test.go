package bidding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/auction-engine/internal/bidding"
	"github.com/atmx/auction-engine/internal/model"
)

type recordingBus struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, ev model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func TestDispatcherBuffersUntilDelivered(t *testing.T) {
	bus := &recordingBus{}
	disp := bidding.NewDispatcher(nil, bus, quietLogger())

	disp.Publish(context.Background(), model.Event{Seq: 1, Kind: model.EventFeePaid})
	disp.Publish(context.Background(), model.Event{Seq: 2, Kind: model.EventBidPlaced})
	if len(bus.events) != 0 {
		t.Fatalf("events reached the bus before Deliver: %d", len(bus.events))
	}

	disp.Deliver(context.Background(), []model.Event{
		{Seq: 1, Kind: model.EventFeePaid},
		{Seq: 2, Kind: model.EventBidPlaced},
	})
	if len(bus.events) != 2 || bus.events[0].Seq != 1 || bus.events[1].Seq != 2 {
		t.Fatalf("bus received %+v", bus.events)
	}
}

func TestDispatcherBusFailureDoesNotPanicWithoutHub(t *testing.T) {
	bus := &recordingBus{err: errors.New("redis down")}
	disp := bidding.NewDispatcher(nil, bus, quietLogger())
	disp.Deliver(context.Background(), []model.Event{{Seq: 1, Kind: model.EventPaused}})
}

// dialHub starts hub and returns a connected client.
func dialHub(t *testing.T, hub *bidding.WSHub) (*websocket.Conn, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, cancel
}

// readUntil keeps sending via send until the client reads a message or the
// deadline passes; registration with the hub completes asynchronously.
func readUntil(t *testing.T, conn *websocket.Conn, send func()) bidding.WSMessage {
	t.Helper()
	got := make(chan bidding.WSMessage, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			close(got)
			return
		}
		var msg bidding.WSMessage
		json.Unmarshal(data, &msg)
		got <- msg
	}()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg, ok := <-got:
			if !ok {
				t.Fatal("no message received")
			}
			return msg
		case <-tick.C:
			send()
		}
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := bidding.NewWSHub(quietLogger())
	conn, cancel := dialHub(t, hub)
	defer cancel()

	msg := readUntil(t, conn, func() {
		hub.Broadcast(model.Event{AuctionID: "a", Seq: 7, Kind: model.EventBidPlaced})
	})
	if msg.Type != string(model.EventBidPlaced) || msg.Event.Seq != 7 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestRelayFeedsHub(t *testing.T) {
	hub := bidding.NewWSHub(quietLogger())
	disp := bidding.NewDispatcher(hub, &recordingBus{}, quietLogger())
	conn, cancel := dialHub(t, hub)
	defer cancel()

	ch := make(chan model.Event, 64)
	go disp.Relay(context.Background(), ch)

	msg := readUntil(t, conn, func() {
		select {
		case ch <- model.Event{Seq: 3, Kind: model.EventPhaseAdvanced, Phase: model.Phase1}:
		default:
		}
	})
	if msg.Event.Kind != model.EventPhaseAdvanced || msg.Event.Phase != model.Phase1 {
		t.Errorf("unexpected message %+v", msg)
	}
	close(ch)
}
