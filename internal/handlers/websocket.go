package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/models"
	"solroll-backend/internal/services"
)

const (
	MessageBalanceUpdate = "BALANCE_UPDATE"
	MessageBetResolved   = "BET_RESOLVED"
	MessageSlot          = "SLOT"
	MessagePing          = "PING"
	MessagePong          = "PONG"

	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	ledgerService *services.LedgerService
	hub           *WebSocketHub
	log           logrus.FieldLogger
}

// WebSocketHub fans ledger events out to connected participants. Only the
// hub goroutine touches the client set.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	log        logrus.FieldLogger
}

type Client struct {
	Participant string
	Conn        *websocket.Conn
	send        chan *Message
}

type Message struct {
	Type        string      `json:"type"`
	Participant string      `json:"participant,omitempty"`
	Data        interface{} `json:"data"`
}

func NewWebSocketHandler(ledgerService *services.LedgerService, log logrus.FieldLogger) *WebSocketHandler {
	hub := &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		log:        log,
	}

	go hub.run()

	return &WebSocketHandler{
		ledgerService: ledgerService,
		hub:           hub,
		log:           log,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	participant := c.GetString("participant")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		Participant: participant,
		Conn:        conn,
		send:        make(chan *Message, 16),
	}

	h.hub.register <- client
	go client.writePump(h.log)

	defer func() {
		h.hub.unregister <- client
	}()

	if balance, err := h.ledgerService.GetBalances(c.Request.Context(), participant); err == nil {
		h.BroadcastBalance(balance)
	} else {
		h.log.WithError(err).WithField("participant", participant).Warn("Failed to get balance for WS")
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		if msg.Type == MessagePing {
			h.hub.broadcast <- &Message{
				Type:        MessagePong,
				Participant: participant,
				Data:        gin.H{"timestamp": time.Now().Unix()},
			}
		}
	}
}

func (c *Client) writePump(log logrus.FieldLogger) {
	defer c.Conn.Close()
	for msg := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			log.WithError(err).WithField("participant", c.Participant).Debug("WebSocket write failed")
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			conns, ok := hub.clients[client.Participant]
			if !ok {
				conns = make(map[*Client]struct{})
				hub.clients[client.Participant] = conns
			}
			conns[client] = struct{}{}
			hub.log.WithField("participant", client.Participant).Debug("Client registered")

		case client := <-hub.unregister:
			hub.remove(client)

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	conns, ok := hub.clients[client.Participant]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(hub.clients, client.Participant)
	}
	hub.log.WithField("participant", client.Participant).Debug("Client unregistered")
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	deliver := func(client *Client) {
		select {
		case client.send <- message:
		default:
			hub.remove(client)
		}
	}

	if message.Participant != "" {
		for client := range hub.clients[message.Participant] {
			deliver(client)
		}
		return
	}
	for _, conns := range hub.clients {
		for client := range conns {
			deliver(client)
		}
	}
}

func (h *WebSocketHandler) publish(msg *Message) {
	select {
	case h.hub.broadcast <- msg:
	default:
		h.log.WithField("type", msg.Type).Warn("WebSocket broadcast queue full, dropping message")
	}
}

func (h *WebSocketHandler) BroadcastBalance(balance *models.BalanceResponse) {
	h.publish(&Message{
		Type:        MessageBalanceUpdate,
		Participant: balance.Participant,
		Data:        balance,
	})
}

func (h *WebSocketHandler) BroadcastSettlement(bet *models.BetSession) {
	h.publish(&Message{
		Type:        MessageBetResolved,
		Participant: bet.Participant,
		Data:        bet,
	})
}

func (h *WebSocketHandler) BroadcastSlot(slot uint64) {
	h.publish(&Message{
		Type: MessageSlot,
		Data: gin.H{
			"slot":      slot,
			"timestamp": time.Now().Unix(),
		},
	})
}

var _ services.Broadcaster = (*WebSocketHandler)(nil)
