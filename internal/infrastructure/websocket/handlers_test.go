package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/memory"
	"auction-marketplace/internal/locktable"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenTable map[string]int64

func (tt tokenTable) Authenticate(token string) (int64, error) {
	if id, ok := tt[token]; ok {
		return id, nil
	}
	return 0, domain.ErrInvalidToken
}

type wsFixture struct {
	server    *httptest.Server
	store     *memory.Store
	connMgr   *ConnectionManager
	auctionID int64
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := logger.NewNop()
	store := memory.NewStore()
	p := decimal.NewFromInt(100)
	a := &domain.Auction{
		OwnerID: 1, ItemName: "clock", CategoryID: domain.DefaultCategoryID,
		StartingPrice: p, CurrentPrice: p, Status: domain.AuctionActive, EndTime: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))

	connMgr := NewConnectionManager(log)
	bus := services.NewLocalEventBus(log)
	listener := services.NewEventListener(nil, NewWebSocketNotifier(connMgr), log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go listener.Start(ctx, bus)

	arbiter := services.NewBidArbiter(locktable.New(), store, services.ArbiterPolicy{
		MinIncrement:    decimal.NewFromInt(10),
		LockWaitTimeout: time.Second,
		TxnTimeout:      time.Second,
	}, bus, log)

	h := NewWebSocketHandler(arbiter, store, tokenTable{"alice": 11, "bob": 12}, connMgr, log)
	router := mux.NewRouter()
	router.HandleFunc("/ws/auction/{auctionID}", h.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &wsFixture{server: srv, store: store, connMgr: connMgr, auctionID: a.ID}
}

func (f *wsFixture) url(path string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url("/ws/auction/1?token="+token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool {
		return len(f.connMgr.GetConnectionsForUser(tokenTable{"alice": 11, "bob": 12}[token])) > 0
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestHandleConnectionRejections(t *testing.T) {
	f := newWSFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"bad id", "/ws/auction/abc?token=alice", http.StatusBadRequest},
		{"no token", "/ws/auction/1", http.StatusUnauthorized},
		{"bad token", "/ws/auction/1?token=mallory", http.StatusUnauthorized},
		{"unknown auction", "/ws/auction/99?token=alice", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(f.url(tt.path), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPlaceBidOverWebsocket(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	require.NoError(t, alice.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": "105.00"}))
	res := readUntil(t, alice, "bid_result")
	assert.Equal(t, "too_low", res["outcome"])
	assert.Equal(t, "110.00", res["minimum_bid"])

	require.NoError(t, alice.WriteJSON(map[string]interface{}{"type": "place_bid", "amount": 110}))
	res = readUntil(t, alice, "bid_result")
	assert.Equal(t, "accepted", res["outcome"])
	assert.NotEmpty(t, res["bid_id"])

	update := readUntil(t, bob, "bid_update")
	assert.Equal(t, "110.00", update["current_price"])
	assert.Equal(t, float64(11), update["current_winner"])

	a, err := f.store.GetAuction(context.Background(), f.auctionID)
	require.NoError(t, err)
	assert.Equal(t, "110.00", a.CurrentPrice.StringFixed(2))
}

func TestPingAndBadMessages(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, conn, "pong")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "place_bid", "amount": "lots"}))
	msg := readUntil(t, conn, "error")
	assert.Equal(t, "invalid amount format", msg["message"])
}

func TestConnectionIsUnregisteredOnClose(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")
	require.Len(t, f.connMgr.GetConnectionsForAuction(f.auctionID), 1)

	conn.Close()
	assert.Eventually(t, func() bool {
		return len(f.connMgr.GetConnectionsForAuction(f.auctionID)) == 0
	}, time.Second, 5*time.Millisecond)
}
