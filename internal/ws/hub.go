package ws

import (
	"sync"

	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/logger"
)

// channelPrefix namespaces chat rooms on the wire; clients subscribe to
// "fightzone-chat-{room}"
const channelPrefix = "fightzone-chat-"

// ChannelName returns the wire channel for a room
func ChannelName(room string) string {
	return channelPrefix + models.NormalizeRoom(room)
}

// MessageService is what the hub needs from the chat service
type MessageService interface {
	Post(id string, userID uint, username, room, content string) (*models.ChatMessage, error)
	Recent(room string) ([]models.ChatMessage, error)
}

// Hub tracks connected chat clients per room and fans messages out to
// them. One hub serves all rooms.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	messages   MessageService
	log        *logger.Logger
	mu         sync.Mutex
}

type outbound struct {
	room    string
	payload []byte
}

func NewHub(messages MessageService, log *logger.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
		messages:   messages,
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.Room] == nil {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.mu.Unlock()
			h.log.Debug("Chat client registered", "client_id", client.ID, "room", client.Room)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.Room]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.rooms, client.Room)
					}
				}
			}
			h.mu.Unlock()
			h.log.Debug("Chat client unregistered", "client_id", client.ID, "room", client.Room)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.room] {
				select {
				case client.Send <- msg.payload:
				default:
					// Slow clients are dropped rather than allowed to
					// stall the room
					close(client.Send)
					delete(h.rooms[msg.room], client)
					h.log.Warn("Chat client dropped, send buffer full", "client_id", client.ID, "room", msg.room)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastNew fans one stored message out to the clients of its room.
// Satisfies the message service's broadcaster interface.
func (h *Hub) BroadcastNew(room string, msg *models.ChatMessage) {
	payload, err := marshalEvent(EventNewMessage, room, msg)
	if err != nil {
		h.log.Error("Failed to marshal chat broadcast", "error", err.Error())
		return
	}
	h.broadcast <- outbound{room: models.NormalizeRoom(room), payload: payload}
}
