package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/geoguess/go/internal/game"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// ActionHandler receives the actions players send over their sockets and
// the presence changes of their connections.
type ActionHandler interface {
	HandleAction(ctx context.Context, a game.Action) error
	Connect(sessionID uuid.UUID, player session.Player) error
	Disconnect(sessionID uuid.UUID, playerID string) error
}

// ConnectionManager manages WebSocket connections for game sessions. It
// implements events.Broadcaster for single-instance deployments.
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[uuid.UUID]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  ActionHandler

	// single queue so each session's events reach sockets in publish order
	broadcastCh chan BroadcastMessage
	losses      *events.LossTracker
}

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// Connection represents a WebSocket connection to a player
type Connection struct {
	ID        string
	UserID    string
	Username  string
	SessionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// guards Send against a close racing a broadcast
	sendMu sync.Mutex
	closed bool
}

// trySend queues data without blocking.
func (c *Connection) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// closeSend closes Send once, ending the write pump.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an envelope queued for delivery. An envelope with a
// PlayerID goes to that player's connections only.
type BroadcastMessage struct {
	SessionID uuid.UUID
	Envelope  *events.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, handler ActionHandler) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan BroadcastMessage, 1000),
		losses:      events.NewLossTracker(),
	}
}

// Start processes queued broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
			if len(cm.broadcastCh) == 0 {
				cm.resync()
			}
		case <-cm.losses.Wake():
			if len(cm.broadcastCh) == 0 {
				cm.resync()
			}
		}
	}
}

// resync tells sessions that lost events to refetch their state.
func (cm *ConnectionManager) resync() {
	for id, dropped := range cm.losses.Take() {
		env, err := events.NewEnvelope(id, events.Resync(dropped))
		if err != nil {
			continue
		}
		log.Warn().Str("session_id", id.String()).Int("dropped", dropped).Msg("events were dropped - asking clients to resync")
		cm.handleBroadcast(BroadcastMessage{SessionID: id, Envelope: env})
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
// for the session.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, username string, sessionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Username:    username,
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	if first := cm.registerConnection(connection); first && cm.handler != nil {
		if err := cm.handler.Connect(sessionID, session.Player{ID: userID, Username: username}); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("session_id", sessionID.String()).Msg("failed to mark player connected")
		}
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection and reports whether it is the user's
// first in the session.
func (cm *ConnectionManager) registerConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	first := !cm.hasUserLocked(conn.SessionID, conn.UserID)
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID.String()).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
	return first
}

// unregisterConnection removes a connection. When it was the user's last one
// in the session the action handler is told the player left.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists {
		cm.mu.Unlock()
		return
	}
	if _, exists := connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	conn.closeSend()
	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}
	last := !cm.hasUserLocked(conn.SessionID, conn.UserID)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("session_id", conn.SessionID.String()).
		Msg("connection unregistered")

	if last && cm.handler != nil {
		if err := cm.handler.Disconnect(conn.SessionID, conn.UserID); err != nil {
			log.Warn().Err(err).Str("user_id", conn.UserID).Msg("failed to mark player disconnected")
		}
	}
}

func (cm *ConnectionManager) hasUserLocked(sessionID uuid.UUID, userID string) bool {
	for c := range cm.sessionConnections[sessionID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// Publish queues e for every connection of the session.
func (cm *ConnectionManager) Publish(sessionID uuid.UUID, e events.Event) {
	cm.enqueue(sessionID, "", e)
}

// PublishToPlayer queues e for one player's connections.
func (cm *ConnectionManager) PublishToPlayer(sessionID uuid.UUID, playerID string, e events.Event) {
	cm.enqueue(sessionID, playerID, e)
}

func (cm *ConnectionManager) enqueue(sessionID uuid.UUID, playerID string, e events.Event) {
	env, err := events.NewEnvelope(sessionID, e)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to build envelope")
		return
	}
	env.PlayerID = playerID
	cm.Deliver(sessionID, env)
}

// Deliver queues an already built envelope, e.g. one received from JetStream.
func (cm *ConnectionManager) Deliver(sessionID uuid.UUID, env *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Envelope: env}:
	default:
		cm.losses.Mark(sessionID)
		log.Warn().
			Str("session_id", sessionID.String()).
			Str("event_type", string(env.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	var targets []*Connection
	for conn := range connections {
		if message.Envelope.PlayerID != "" && conn.UserID != message.Envelope.PlayerID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Envelope)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		switch err := conn.trySend(data); {
		case err == nil, errors.Is(err, errConnectionClosed):
			// closed connections unregistered after the snapshot
		default:
			log.Warn().
				Err(err).
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("closing slow connection")
			cm.unregisterConnection(conn)
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}

	log.Debug().
		Str("event_type", string(message.Envelope.Type)).
		Str("session_id", message.SessionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats summarizes active connections.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveSessions:     len(cm.sessionConnections),
		SessionConnections: make(map[string]int, len(cm.sessionConnections)),
	}
	for sessionID, connections := range cm.sessionConnections {
		stats.TotalConnections += len(connections)
		stats.SessionConnections[sessionID.String()] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// clientMessage is what players send: {"type": "...", "payload": {...}}.
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleClientMessage routes a player's message to the action handler. The
// session and player come from the connection, not the message.
func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		msg = clientMessage{}
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("unparseable client message")
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("type", msg.Type).
		Msg("received client message")

	if c.Manager.handler == nil {
		return
	}
	// rejected actions are reported to the player by the handler
	_ = c.Manager.handler.HandleAction(context.Background(), game.Action{
		Type:      msg.Type,
		SessionID: c.SessionID,
		PlayerID:  c.UserID,
		Payload:   msg.Payload,
	})
}
