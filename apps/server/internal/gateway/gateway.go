// Package gateway implements the real-time dispatcher: a websocket boundary
// that authenticates connections, routes the four client-invokable methods
// to the registry, and broadcasts lifecycle events to each session's group.
//
// Connections are grouped by JSON envelopes rather than protobuf, wired to
// the towerplane registry.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"towerplane/apps/server/internal/auth"
	"towerplane/apps/server/internal/registry"
	"towerplane/session"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	sendBuffer   = 256
)

// Connection is one authenticated websocket client.
type Connection struct {
	id        string
	principal session.PlayerID
	conn      *websocket.Conn
	send      chan []byte
	gateway   *Gateway

	mu     sync.Mutex
	gameID session.ID
	inGame bool
}

// Gateway manages websocket connections and session-scoped broadcast groups.
type Gateway struct {
	upgrader  websocket.Upgrader
	validator auth.TokenValidator
	registry  *registry.Registry
	maxBytes  int64

	mu          sync.RWMutex
	connections map[string]*Connection
	groups      map[string]map[string]*Connection
	nextConnID  uint64
}

// New builds a Gateway bound to validator and reg, enforcing maxInboundBytes
// per message.
func New(validator auth.TokenValidator, reg *registry.Registry, maxInboundBytes int) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validator:   validator,
		registry:    reg,
		maxBytes:    int64(maxInboundBytes),
		connections: make(map[string]*Connection),
		groups:      make(map[string]map[string]*Connection),
	}
}

func groupName(sid session.ID) string {
	return "game:" + sid.String()
}

// HandleWebSocket upgrades the connection after validating the bearer token
// carried in the "token" query parameter.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	principal, err := g.validator.Validate(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	connID := fmt.Sprintf("conn_%d", g.nextConnID)
	c := &Connection{
		id:        connID,
		principal: principal,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		gateway:   g,
	}
	g.connections[connID] = c
	g.mu.Unlock()

	log.Printf("[gateway] connected: %s principal=%s", connID, principal)

	go c.writePump()
	go c.readPump()
}

func (c *Connection) readPump() {
	defer func() {
		c.gateway.removeConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gateway.maxBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[gateway] read error on %s: %v", c.id, err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.reply(&ServerEnvelope{Type: "Error", Error: wireErrorFor(fmt.Errorf("%w: %v", ErrMalformedRequest, err))})
		return
	}

	ctx := context.Background()
	switch env.Method {
	case "CreateGame":
		c.handleCreateGame(ctx, env)
	case "JoinGame":
		c.handleJoinGame(ctx, env)
	case "StartGame":
		c.handleStartGame(ctx, env)
	case "ClickSymbol":
		c.handleClickSymbol(ctx, env)
	default:
		c.reply(&ServerEnvelope{Type: "Error", CorrelationID: env.CorrelationID, Error: wireErrorFor(ErrUnknownMethod)})
	}
}

func (c *Connection) fail(env ClientEnvelope, err error) {
	c.reply(&ServerEnvelope{Type: "Error", CorrelationID: env.CorrelationID, Error: wireErrorFor(err)})
}

// failUnauthorized rejects a request whose claimed playerId does not match
// the connection's authenticated principal, and logs the mismatch.
func (c *Connection) failUnauthorized(env ClientEnvelope, claimedPlayerID string) {
	log.Printf("[gateway] unauthorized: %s authenticated as %s claimed %s", c.id, c.principal, claimedPlayerID)
	c.fail(env, ErrUnauthorized)
}

func (c *Connection) handleCreateGame(ctx context.Context, env ClientEnvelope) {
	var args createGameArgs
	if err := json.Unmarshal(env.Args, &args); err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	created, err := c.gateway.registry.CreateGame(ctx, session.Mode(args.Mode), args.MaxPlayers, args.MaxRounds)
	if err != nil {
		c.fail(env, err)
		return
	}
	c.reply(&ServerEnvelope{
		Type:          "GameCreated",
		CorrelationID: env.CorrelationID,
		Payload: gameCreatedResp{
			GameID:     created.GameID.String(),
			Mode:       string(created.Mode),
			MaxPlayers: created.MaxPlayers,
			MaxRounds:  created.MaxRounds,
		},
	})
}

func (c *Connection) handleJoinGame(ctx context.Context, env ClientEnvelope) {
	var args joinGameArgs
	if err := json.Unmarshal(env.Args, &args); err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	sid, err := session.ParseID(args.GameID)
	if err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	if c.principal != session.PlayerID(args.PlayerID) {
		c.failUnauthorized(env, args.PlayerID)
		return
	}
	if err := c.gateway.registry.JoinGame(ctx, sid, session.PlayerID(args.PlayerID)); err != nil {
		c.fail(env, err)
		return
	}
	c.joinGroup(sid)
	c.reply(&ServerEnvelope{Type: "JoinGameAck", CorrelationID: env.CorrelationID})
}

func (c *Connection) handleStartGame(ctx context.Context, env ClientEnvelope) {
	var args startGameArgs
	if err := json.Unmarshal(env.Args, &args); err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	sid, err := session.ParseID(args.GameID)
	if err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	round, err := c.gateway.registry.StartGame(ctx, sid)
	if err != nil {
		c.fail(env, err)
		return
	}
	c.joinGroup(sid)
	event := roundStartEnvelope(round)
	c.reply(&ServerEnvelope{Type: "RoundStart", CorrelationID: env.CorrelationID, Payload: event})
	c.gateway.broadcastExcept(groupName(sid), c.id, &ServerEnvelope{Type: "RoundStart", Payload: event})
}

func (c *Connection) handleClickSymbol(ctx context.Context, env ClientEnvelope) {
	var args clickSymbolArgs
	if err := json.Unmarshal(env.Args, &args); err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	sid, err := session.ParseID(args.GameID)
	if err != nil {
		c.fail(env, fmt.Errorf("%w: %v", ErrMalformedRequest, err))
		return
	}
	if c.principal != session.PlayerID(args.PlayerID) {
		c.failUnauthorized(env, args.PlayerID)
		return
	}
	result, err := c.gateway.registry.ClickSymbol(ctx, sid, session.PlayerID(args.PlayerID), args.SymbolID)
	if err != nil {
		c.fail(env, err)
		return
	}

	event := roundResultEnvelope(result)
	c.reply(&ServerEnvelope{Type: "RoundResult", CorrelationID: env.CorrelationID, Payload: event})
	c.gateway.broadcast(groupName(sid), &ServerEnvelope{Type: "RoundResult", Payload: event})

	if result.GameCompleted {
		over, err := c.gateway.registry.PersistEndGame(ctx, sid)
		if err == nil && over != nil {
			c.gateway.broadcast(groupName(sid), &ServerEnvelope{Type: "GameOver", Payload: gameOverEventFrom(over)})
		}
		c.gateway.dropGroup(groupName(sid))
		return
	}
	if result.NextRound != nil {
		c.gateway.broadcast(groupName(sid), &ServerEnvelope{Type: "RoundStart", Payload: roundStartEnvelope(result.NextRound)})
	}
}

func roundStartEnvelope(rs *registry.RoundStart) roundStartEvent {
	cards := make(map[string]int, len(rs.PlayerCardIndexes))
	for p, idx := range rs.PlayerCardIndexes {
		cards[string(p)] = idx
	}
	return roundStartEvent{
		GameID:            rs.GameID.String(),
		RoundNumber:       rs.RoundNumber,
		SharedCardIndex:   rs.SharedCardIndex,
		PlayerCardIndexes: cards,
		StartedAtUtc:      rs.StartedAtUtc,
	}
}

func roundResultEnvelope(r *registry.RoundResult) roundResultEvent {
	ev := roundResultEvent{
		GameID:           r.GameID.String(),
		RoundResolved:    r.RoundResolved,
		AttemptAccepted:  r.AttemptAccepted,
		ProcessedAtUtc:   r.ProcessedAtUtc,
		GameCompleted:    r.GameCompleted,
	}
	if r.RoundResolved {
		ev.ResolvingPlayerID = string(r.ResolvingPlayerID)
		card := r.ResolvingPlayerCardIndex
		ev.ResolvingPlayerCardIndex = &card
		sym := r.MatchingSymbolID
		ev.MatchingSymbolID = &sym
		round := r.RoundNumber
		ev.RoundNumber = &round
		durationMs := r.ResolutionDuration.Milliseconds()
		ev.ResolutionDurationMs = &durationMs
		scores := make(map[string]int, len(r.Scores))
		for p, s := range r.Scores {
			scores[string(p)] = s
		}
		ev.Scores = scores
	}
	return ev
}

func gameOverEventFrom(g *registry.GameOver) gameOverEvent {
	scores := make(map[string]int, len(g.FinalScores))
	for p, s := range g.FinalScores {
		scores[string(p)] = s
	}
	return gameOverEvent{GameID: g.GameID.String(), FinalScores: scores, CompletedAtUtc: g.CompletedAtUtc}
}

func (c *Connection) reply(env *ServerEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[gateway] dropping reply to %s: send buffer full", c.id)
	}
}

func (c *Connection) joinGroup(sid session.ID) {
	c.mu.Lock()
	c.gameID = sid
	c.inGame = true
	c.mu.Unlock()
	c.gateway.addToGroup(groupName(sid), c)
}

func (g *Gateway) addToGroup(name string, c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[name]
	if !ok {
		grp = make(map[string]*Connection)
		g.groups[name] = grp
	}
	grp[c.id] = c
}

func (g *Gateway) dropGroup(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, name)
}

// broadcast sends env to every connection in the named group. It runs after
// the registry's call has returned, so the session lock is not held while
// writing to sockets.
func (g *Gateway) broadcast(name string, env *ServerEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.groups[name] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// broadcastExcept is broadcast, skipping the connection that already
// received the event as a direct reply, so the invoker is not sent the
// lifecycle event twice.
func (g *Gateway) broadcastExcept(name, exceptConnID string, env *ServerEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[gateway] marshal error: %v", err)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id, c := range g.groups[name] {
		if id == exceptConnID {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connections, c.id)
	for _, grp := range g.groups {
		delete(grp, c.id)
	}
	log.Printf("[gateway] disconnected: %s, total: %d", c.id, len(g.connections))
}

// ConnectionCount reports the number of live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}
