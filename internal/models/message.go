package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultRoom is the room chat messages land in when none is given
const DefaultRoom = "global"

// MaxContentLen caps chat message length; longer sends are truncated
const MaxContentLen = 300

// ChatMessage represents one row in the chat_messages table
type ChatMessage struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_messages_room_created,priority:2"`
	UserID    uint      `json:"user_id" gorm:"index"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Room      string    `json:"room" gorm:"index:idx_chat_messages_room_created,priority:1;default:global"`
}

// TableName keeps the table name the chat clients expect
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// NormalizeRoom maps blank or whitespace-only room ids to the default room
func NormalizeRoom(room string) string {
	trimmed := strings.TrimSpace(room)
	if trimmed == "" {
		return DefaultRoom
	}
	return trimmed
}

// TruncateContent trims surrounding whitespace and enforces the length
// cap. The cap counts characters, not bytes, so a cut never lands inside
// a multi-byte rune.
func TruncateContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) > MaxContentLen {
		return string([]rune(trimmed)[:MaxContentLen])
	}
	return trimmed
}
