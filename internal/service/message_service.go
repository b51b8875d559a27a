package service

import (
	"errors"
	"time"

	"fightzone/backend/internal/models"
	"fightzone/backend/internal/repository"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/shared/observability"

	"github.com/google/uuid"
)

// ErrEmptyMessage is returned when a message is blank after trimming
var ErrEmptyMessage = errors.New("message content is empty")

// Broadcaster fans a stored message out to connected websocket clients.
// Implemented by the ws hub; a nil broadcaster means polling-only delivery.
type Broadcaster interface {
	BroadcastNew(room string, msg *models.ChatMessage)
}

// MessageService owns chat message validation, persistence and fan-out
type MessageService struct {
	repo       repository.MessageRepository
	broadcast  Broadcaster
	viewLimit  int
	batchLimit int
	log        *logger.Logger
}

// NewMessageService creates a new message service
func NewMessageService(repo repository.MessageRepository, broadcast Broadcaster, viewLimit, batchLimit int, log *logger.Logger) *MessageService {
	if viewLimit <= 0 {
		viewLimit = 60
	}
	if batchLimit <= 0 {
		batchLimit = 50
	}
	return &MessageService{
		repo:       repo,
		broadcast:  broadcast,
		viewLimit:  viewLimit,
		batchLimit: batchLimit,
		log:        log,
	}
}

// SetBroadcaster wires the websocket hub in after construction; the hub
// itself depends on this service
func (s *MessageService) SetBroadcaster(b Broadcaster) {
	s.broadcast = b
}

// Recent returns the latest view-full of messages for a room in
// chronological order
func (s *MessageService) Recent(room string) ([]models.ChatMessage, error) {
	return s.repo.Recent(room, s.viewLimit)
}

// Since returns messages created strictly after the watermark, capped at
// one poll batch
func (s *MessageService) Since(room string, after time.Time) ([]models.ChatMessage, error) {
	return s.repo.Since(room, after, s.batchLimit)
}

// Post validates, stores and broadcasts one chat message. Clients may
// supply the id so redelivery over another channel stays recognizable;
// a blank id gets one assigned here.
func (s *MessageService) Post(id string, userID uint, username, room, content string) (*models.ChatMessage, error) {
	content = models.TruncateContent(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	if id == "" {
		id = uuid.New().String()
	} else if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}

	msg := &models.ChatMessage{
		ID:        id,
		CreatedAt: time.Now(),
		UserID:    userID,
		Username:  username,
		Content:   content,
		Room:      models.NormalizeRoom(room),
	}

	if err := s.repo.Create(msg); err != nil {
		return nil, err
	}
	observability.ChatMessagesStored.WithLabelValues(msg.Room).Inc()

	if s.broadcast != nil {
		s.broadcast.BroadcastNew(msg.Room, msg)
	}

	return msg, nil
}
