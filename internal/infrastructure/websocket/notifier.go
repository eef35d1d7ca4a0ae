package websocket

import (
	"context"

	"auction-marketplace/internal/domain"
)

// WebSocketNotifier adapts a ConnectionManager to the context-taking
// notifier interfaces used by the services.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) NotifyUser(ctx context.Context, userID int64, message interface{}) error {
	return n.connManager.NotifyUser(userID, message)
}

func (n *WebSocketNotifier) BroadcastToAuction(ctx context.Context, auctionID int64, message interface{}) error {
	return n.connManager.BroadcastToAuction(auctionID, message)
}
