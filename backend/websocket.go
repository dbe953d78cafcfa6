// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// A hub with no clients exits after this long.
	hubIdleTimeout = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// ErrForbidden is returned by the hub when the user lacks access.
var ErrForbidden = errors.New("forbidden")

// Message types for WebSocket communication
const (
	MsgTypeJoin    = "JOIN"
	MsgTypeCommand = "COMMAND"
	MsgTypeState   = "STATE"
	MsgTypeError   = "ERROR"
	MsgTypePing    = "PING"
	MsgTypePong    = "PONG"
)

// Message represents a WebSocket message. STATE messages carry the full
// game record in Game.
type Message struct {
	Type    string          `json:"type"`
	GameId  string          `json:"gameId,omitempty"`
	Command *Command        `json:"command,omitempty"`
	Applied bool            `json:"applied,omitempty"`
	Game    json.RawMessage `json:"game,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HubRequest types
const (
	ReqTypeRegister = "REGISTER"
	ReqTypeWSJoin   = "WS_JOIN"
	ReqTypeLoad     = "LOAD"
	ReqTypeCommand  = "COMMAND"
	ReqTypeDelete   = "DELETE"
)

// HubRequest represents a request to the Hub
type HubRequest struct {
	Type    string
	Client  *wsClient        // For WS requests
	UserId  string           // For HTTP requests
	Command Command          // For COMMAND requests
	Reply   chan HubResponse // For HTTP requests
}

// HubResponse represents a response from the Hub
type HubResponse struct {
	Data    []byte // Full game record
	Applied bool
	Error   error
}

// Hub owns the in-memory copy of one game. Every read and write of the
// game goes through its goroutine, so commands are applied one at a time
// and each applied command is persisted before the next one starts.
type Hub struct {
	gameId string

	// Registered clients; the value is true once the client has joined.
	clients map[*wsClient]bool

	// Inbound requests
	requests chan HubRequest

	// Unregister requests from clients.
	unregister chan *wsClient

	// Closed when run returns.
	done chan struct{}

	// In-memory state, nil until loaded.
	gameData *Game

	gs *GameStore
	ts *TeamStore
	r  *Registry
	hm *HubManager
}

func newHub(id string, gs *GameStore, ts *TeamStore, r *Registry, hm *HubManager) *Hub {
	return &Hub{
		gameId:     id,
		requests:   make(chan HubRequest, 64),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		clients:    make(map[*wsClient]bool),
		gs:         gs,
		ts:         ts,
		r:          r,
		hm:         hm,
	}
}

func (h *Hub) run() {
	idleTimer := time.NewTicker(hubIdleTimeout)
	defer idleTimer.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case req := <-h.requests:
			h.handle(req)
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.hm.retire(h) {
				return
			}
		}
	}
}

func (h *Hub) handle(req HubRequest) {
	if req.Type == ReqTypeRegister {
		h.clients[req.Client] = false
		return
	}
	if err := h.ensureLoaded(); err != nil {
		h.fail(req, err)
		return
	}
	switch req.Type {
	case ReqTypeWSJoin:
		h.handleWSJoin(req.Client)
	case ReqTypeLoad:
		h.handleLoad(req)
	case ReqTypeCommand:
		h.handleCommand(req)
	case ReqTypeDelete:
		h.handleDelete(req)
	}
}

// fail reports err to whoever sent req.
func (h *Hub) fail(req HubRequest, err error) {
	if req.Reply != nil {
		req.Reply <- HubResponse{Error: err}
	}
	if req.Client != nil {
		req.Client.sendJSON(Message{Type: MsgTypeError, GameId: h.gameId, Error: errorMessage(err)})
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "Game not found"
	case errors.Is(err, ErrForbidden):
		return "Forbidden: You do not have access to this game"
	case errors.Is(err, ErrInvalidCommand):
		return err.Error()
	}
	return "Server error"
}

func (h *Hub) ensureLoaded() error {
	if h.gameData != nil {
		return nil
	}
	g, err := h.gs.LoadGame(h.gameId)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[HUB] Error loading game %s: %v", h.gameId, err)
		}
		return err
	}
	if g.IsDeleted() {
		return os.ErrNotExist
	}
	h.gameData = g
	return nil
}

func (h *Hub) userId(req HubRequest) string {
	if req.Client != nil {
		return req.Client.userId
	}
	return req.UserId
}

func (h *Hub) access(userId string) AccessLevel {
	return GetGameAccess(userId, *h.gameData, h.ts)
}

func (h *Hub) stateMessage() (Message, []byte, error) {
	data, err := json.Marshal(h.gameData)
	if err != nil {
		return Message{}, nil, err
	}
	return Message{Type: MsgTypeState, GameId: h.gameId, Game: data}, data, nil
}

func (h *Hub) handleWSJoin(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	if h.access(c.userId) < AccessRead {
		log.Printf("Forbidden: User %s attempted to join game %s without permissions", maskEmail(c.userId), h.gameId)
		h.fail(HubRequest{Client: c}, ErrForbidden)
		return
	}
	h.clients[c] = true
	msg, _, err := h.stateMessage()
	if err != nil {
		h.fail(HubRequest{Client: c}, err)
		return
	}
	c.sendJSON(msg)
}

func (h *Hub) handleLoad(req HubRequest) {
	if h.access(req.UserId) < AccessRead {
		h.fail(req, ErrForbidden)
		return
	}
	_, data, err := h.stateMessage()
	req.Reply <- HubResponse{Data: data, Error: err}
}

func (h *Hub) handleCommand(req HubRequest) {
	userId := h.userId(req)
	if h.access(userId) < AccessWrite {
		h.fail(req, ErrForbidden)
		return
	}

	applied, err := ApplyCommand(h.gameData, req.Command)
	if err != nil {
		log.Printf("[HUB] Rejected command from user %s on game %s: %v", maskEmail(userId), h.gameId, err)
		h.fail(req, err)
		return
	}
	if applied {
		if err := h.gs.SaveGame(h.gameData); err != nil {
			log.Printf("[HUB] Error saving game %s: %v", h.gameId, err)
			// Drop the unsaved state; the next request reloads from disk.
			h.gameData = nil
			h.fail(req, fmt.Errorf("save game: %w", err))
			return
		}
		h.r.UpdateGame(h.gameData)
		h.hm.monitor.commandApplied()
	}

	msg, data, err := h.stateMessage()
	if err != nil {
		h.fail(req, err)
		return
	}
	msg.Applied = applied
	if applied {
		h.broadcast(msg)
	}
	// The sender always hears back, joined or not.
	if c := req.Client; c != nil && (!applied || !h.clients[c]) {
		c.sendJSON(msg)
	}
	if req.Reply != nil {
		req.Reply <- HubResponse{Data: data, Applied: applied}
	}
}

func (h *Hub) handleDelete(req HubRequest) {
	if h.access(req.UserId) < AccessAdmin {
		h.fail(req, ErrForbidden)
		return
	}
	if err := h.gs.DeleteGame(h.gameId); err != nil {
		h.fail(req, err)
		return
	}
	h.r.DeleteGame(h.gameId)
	h.gameData = nil
	h.broadcast(Message{Type: MsgTypeError, GameId: h.gameId, Error: "Game deleted"})
	req.Reply <- HubResponse{}
}

// broadcast sends msg to every joined client, dropping clients that cannot
// keep up.
func (h *Hub) broadcast(msg Message) {
	for client, joined := range h.clients {
		if !joined {
			continue
		}
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// enqueue queues req from a client goroutine. It returns false once the
// hub has exited.
func (h *Hub) enqueue(req HubRequest) bool {
	select {
	case h.requests <- req:
		return true
	case <-h.done:
		return false
	}
}

// HubManager manages one hub per game.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.Mutex

	gs *GameStore
	ts *TeamStore
	r  *Registry

	// monitor, when set, counts connections and applied commands.
	monitor *Monitor
}

func NewHubManager(gs *GameStore, ts *TeamStore, r *Registry) *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
		gs:   gs,
		ts:   ts,
		r:    r,
	}
}

// getHub returns the hub for gameId, starting it if needed. The caller
// holds hm.mu.
func (hm *HubManager) getHub(gameId string) *Hub {
	if hub, ok := hm.hubs[gameId]; ok {
		return hub
	}
	hub := newHub(gameId, hm.gs, hm.ts, hm.r, hm)
	hm.hubs[gameId] = hub
	go hub.run()
	return hub
}

// Send queues req on the game's hub without blocking. It returns false
// when the hub's queue is full.
func (hm *HubManager) Send(gameId string, req HubRequest) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	select {
	case hm.getHub(gameId).requests <- req:
		return true
	default:
		log.Printf("Warning: Hub channel full for game %s", gameId)
		return false
	}
}

// retire removes h if no request is pending. Requests are only queued
// under hm.mu, so none can arrive once it returns true.
func (hm *HubManager) retire(h *Hub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if len(h.requests) > 0 {
		return false
	}
	if hm.hubs[h.gameId] == h {
		delete(hm.hubs, h.gameId)
	}
	return true
}

// Len returns the number of running hubs.
func (hm *HubManager) Len() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan Message

	userId string
	gameId string
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.hm.monitor.wsClosed()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypeJoin:
			if !c.hub.enqueue(HubRequest{Type: ReqTypeWSJoin, Client: c}) {
				return
			}
		case MsgTypeCommand:
			if msg.Command == nil {
				c.sendJSON(Message{Type: MsgTypeError, Error: "Missing command"})
				continue
			}
			if !c.hub.enqueue(HubRequest{Type: ReqTypeCommand, Client: c, Command: *msg.Command}) {
				return
			}
		case MsgTypePing:
			c.sendJSON(Message{Type: MsgTypePong})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues msg for the client. Only the hub goroutine and readPump
// call it; a full queue drops the message.
func (c *wsClient) sendJSON(msg Message) {
	defer func() {
		// The hub may have closed send after dropping a slow client.
		recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWS handles websocket requests from the peer.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request, debugf func(string, ...any)) {
	userId := getUserID(r)

	gameId := r.URL.Query().Get("gameId")
	if gameId == "" || !isValidUUID(gameId) {
		http.Error(w, "Invalid gameId", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Message, 256), userId: userId, gameId: gameId}

	hm.mu.Lock()
	client.hub = hm.getHub(gameId)
	var queued bool
	select {
	case client.hub.requests <- HubRequest{Type: ReqTypeRegister, Client: client}:
		queued = true
	default:
	}
	hm.mu.Unlock()
	if !queued {
		conn.WriteJSON(Message{Type: MsgTypeError, Error: "Server is busy"})
		conn.Close()
		return
	}
	hm.monitor.wsOpened()
	debugf("[HUB] %s connected to game %s", maskEmail(userId), gameId)

	go client.writePump()
	go client.readPump()
}
