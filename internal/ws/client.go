package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"fightzone/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; chat frames are small
	maxMessageSize = 4 * 1024
)

// Wire event types. Clients send "insert" to post, the server pushes
// "new_msg" for every stored message in the room.
const (
	EventInsert     = "insert"
	EventNewMessage = "new_msg"
	EventHistory    = "chat_history"
	EventError      = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same-origin is enforced by the CORS layer
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Envelope is the frame format on the chat channel
type Envelope struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Content interface{} `json:"content"`
}

func marshalEvent(eventType, room string, content interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:    eventType,
		Channel: ChannelName(room),
		Content: content,
	})
}

// Client is one websocket connection subscribed to a room
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Room     string
	UserID   uint
	Username string
	Hub      *Hub
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("Chat connection closed unexpectedly", "client_id", c.ID, "error", err.Error())
			}
			break
		}

		var envelope struct {
			Type    string `json:"type"`
			Content struct {
				ID      string `json:"id"`
				Content string `json:"content"`
			} `json:"content"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.Hub.log.Warn("Malformed chat frame", "client_id", c.ID, "error", err.Error())
			continue
		}

		switch envelope.Type {
		case EventInsert:
			c.handleInsert(envelope.Content.ID, envelope.Content.Content)
		case "ping":
			c.send("pong", nil)
		default:
			c.Hub.log.Debug("Unknown chat event type", "type", envelope.Type)
		}
	}
}

// handleInsert stores the message; the service broadcasts it back to the
// room (including this client) once it is persisted
func (c *Client) handleInsert(id, content string) {
	if _, err := c.Hub.messages.Post(id, c.UserID, c.Username, c.Room, content); err != nil {
		c.Hub.log.Warn("Failed to store chat message", "client_id", c.ID, "error", err.Error())
		c.send(EventError, map[string]string{"message": "message could not be delivered"})
	}
}

func (c *Client) send(eventType string, content interface{}) {
	payload, err := marshalEvent(eventType, c.Room, content)
	if err != nil {
		c.Hub.log.Error("Failed to marshal chat event", "error", err.Error())
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush anything already queued as separate frames
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an authenticated request to a chat connection. The
// JWT middleware must run first so user identity is on the context.
func ServeWs(hub *Hub, c *gin.Context) {
	room := models.NormalizeRoom(c.Query("room"))

	userID := c.GetUint("userId")
	username := c.GetString("username")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Room:     room,
		UserID:   userID,
		Username: username,
		Hub:      hub,
	}

	// Seed the view with the room's recent history before live events
	if history, err := hub.messages.Recent(room); err != nil {
		hub.log.Warn("Failed to load chat history", "room", room, "error", err.Error())
	} else {
		client.send(EventHistory, map[string]interface{}{"messages": history})
	}

	client.Hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
