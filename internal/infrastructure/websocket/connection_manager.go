package websocket

import (
	"sync"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"
)

// ConnectionManager indexes live connections by auction and by user. A user
// may hold several connections to the same auction.
type ConnectionManager struct {
	connections map[int64]map[domain.WebSocketConnection]struct{} // auctionID -> connections
	userConns   map[int64]map[domain.WebSocketConnection]struct{} // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[int64]map[domain.WebSocketConnection]struct{}),
		userConns:   make(map[int64]map[domain.WebSocketConnection]struct{}),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionID, userID := conn.AuctionID(), conn.UserID()
	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[domain.WebSocketConnection]struct{})
	}
	cm.connections[auctionID][conn] = struct{}{}

	if cm.userConns[userID] == nil {
		cm.userConns[userID] = make(map[domain.WebSocketConnection]struct{})
	}
	cm.userConns[userID][conn] = struct{}{}

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionID, userID := conn.AuctionID(), conn.UserID()
	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, conn)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	if userConnections, exists := cm.userConns[userID]; exists {
		delete(userConnections, conn)
		if len(userConnections) == 0 {
			delete(cm.userConns, userID)
		}
	}

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID int64) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return keys(cm.connections[auctionID])
}

func (cm *ConnectionManager) GetConnectionsForUser(userID int64) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return keys(cm.userConns[userID])
}

func keys(set map[domain.WebSocketConnection]struct{}) []domain.WebSocketConnection {
	connections := make([]domain.WebSocketConnection, 0, len(set))
	for conn := range set {
		connections = append(connections, conn)
	}
	return connections
}

// BroadcastToAuction sends message to every connection of the auction. A
// failing connection is logged and skipped.
func (cm *ConnectionManager) BroadcastToAuction(auctionID int64, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(), "auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID int64, message interface{}) error {
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "error", err)
		}
	}
	return nil
}
