package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"fightzone/backend/internal/models"
	"fightzone/backend/internal/service"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMessageRepo struct {
	messages []models.ChatMessage
}

func (r *memMessageRepo) Create(msg *models.ChatMessage) error {
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) Recent(room string, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range r.messages {
		if msg.Room == models.NormalizeRoom(room) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memMessageRepo) Since(room string, after time.Time, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, msg := range r.messages {
		if msg.Room == models.NormalizeRoom(room) && msg.CreatedAt.After(after) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fakeAuth(userID uint, username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID)
		c.Set("username", username)
	}
}

func newChatTestServer(repo *memMessageRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := service.NewMessageService(repo, nil, 60, 50, logger.GetGlobal())
	handler := NewChatHandler(svc, logger.GetGlobal())

	r := gin.New()
	r.GET("/api/v1/chat/messages", handler.GetMessages)
	r.POST("/api/v1/chat/messages", fakeAuth(7, "fan"), handler.PostMessage)
	return r
}

func TestGetMessagesReturnsRoomHistory(t *testing.T) {
	repo := &memMessageRepo{}
	base := time.Unix(1700000000, 0)
	repo.messages = append(repo.messages,
		models.ChatMessage{ID: "m1", Room: "global", Content: "one", CreatedAt: base},
		models.ChatMessage{ID: "m2", Room: "global", Content: "two", CreatedAt: base.Add(time.Second)},
		models.ChatMessage{ID: "m3", Room: "ring-b", Content: "other room", CreatedAt: base},
	)
	r := newChatTestServer(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages?room=global", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "one", resp.Messages[0].Content)
	assert.Equal(t, "two", resp.Messages[1].Content)
}

func TestGetMessagesAfterWatermark(t *testing.T) {
	repo := &memMessageRepo{}
	base := time.Unix(1700000000, 0)
	repo.messages = append(repo.messages,
		models.ChatMessage{ID: "m1", Room: "global", Content: "old", CreatedAt: base},
		models.ChatMessage{ID: "m2", Room: "global", Content: "new", CreatedAt: base.Add(5 * time.Second)},
	)
	r := newChatTestServer(repo)

	url := "/api/v1/chat/messages?room=global&after=" + base.Format(time.RFC3339Nano)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "new", resp.Messages[0].Content)
}

func TestGetMessagesBadWatermark(t *testing.T) {
	r := newChatTestServer(&memMessageRepo{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chat/messages?after=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMessageStoresAndDefaultsRoom(t *testing.T) {
	repo := &memMessageRepo{}
	r := newChatTestServer(repo)

	body, _ := json.Marshal(map[string]string{"content": "  hello ringside  "})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.messages, 1)
	stored := repo.messages[0]
	assert.Equal(t, "hello ringside", stored.Content)
	assert.Equal(t, "global", stored.Room)
	assert.Equal(t, uint(7), stored.UserID)
	assert.Equal(t, "fan", stored.Username)
	assert.NotEmpty(t, stored.ID)
}

func TestPostMessageEmptyContent(t *testing.T) {
	repo := &memMessageRepo{}
	r := newChatTestServer(repo)

	body, _ := json.Marshal(map[string]string{"content": "   "})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, repo.messages)
}
