package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"auction-marketplace/internal/api/dto"
	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// AuctionReader is the part of the auction repository the handler needs.
type AuctionReader interface {
	GetAuction(ctx context.Context, auctionID int64) (*domain.AuctionDetails, error)
}

type WebSocketHandler struct {
	placer      domain.BidPlacer
	auctions    AuctionReader
	auth        Authenticator
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(placer domain.BidPlacer, auctions AuctionReader, auth Authenticator,
	connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		placer:      placer,
		auctions:    auctions,
		auth:        auth,
		connManager: connManager,
		log:         log,
	}
}

type clientMessage struct {
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.ParseInt(mux.Vars(r)["auctionID"], 10, 64)
	if err != nil {
		http.Error(w, "invalid auction id", http.StatusBadRequest)
		return
	}

	userID, err := h.auth.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "valid token required", http.StatusUnauthorized)
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to find auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !auction.IsOpen(time.Now()) {
		h.log.Info("Rejected connection - auction has ended", "auction_id", auctionID)
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, auctionID, h.log)
	if err := h.connManager.RegisterConnection(wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}

	go h.handleMessages(wsConn)
}

// bearerToken reads the token from the query string, which browsers can set
// on a websocket URL, or from the Authorization header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection) {
	defer func() {
		h.connManager.UnregisterConnection(conn)
		conn.Close()
	}()

	conn.conn.SetReadLimit(maxMessageSize)
	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Failed to read message", "user_id", conn.userID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, msg)
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		default:
			conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, msg clientMessage) {
	var amount decimal.Decimal
	if len(msg.Amount) == 0 || amount.UnmarshalJSON(msg.Amount) != nil {
		conn.Send(map[string]string{"type": "error", "message": "invalid amount format"})
		return
	}

	res := h.placer.PlaceBid(context.Background(), conn.auctionID, conn.userID, amount)
	reply := dto.NewBidResultResponse(conn.auctionID, res)
	reply.Type = "bid_result"
	if err := conn.Send(reply); err != nil {
		h.log.Error("Failed to send bid result", "user_id", conn.userID, "error", err)
	}
}

// WebSocketConnection serializes writes; gorilla connections support one
// concurrent writer only.
type WebSocketConnection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	userID    int64
	auctionID int64
	log       logger.Logger
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID int64, log logger.Logger) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
		log:       log,
	}
}

func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()
	wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	return wsc.conn.Close()
}

func (wsc *WebSocketConnection) UserID() int64 {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() int64 {
	return wsc.auctionID
}
