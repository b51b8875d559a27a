package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"fightzone/backend/internal/models"
)

// TokenSource provides the session bearer token for authenticated calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Remote implements History and Sender over the backend's REST API, for
// embedding the chat controller outside the server process
type Remote struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewRemote creates a REST-backed chat transport
func NewRemote(baseURL string, tokens TokenSource) *Remote {
	return &Remote{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Remote) Recent(ctx context.Context, room string) ([]models.ChatMessage, error) {
	return r.fetch(ctx, room, nil)
}

func (r *Remote) Since(ctx context.Context, room string, after time.Time) ([]models.ChatMessage, error) {
	if after.IsZero() {
		return r.fetch(ctx, room, nil)
	}
	return r.fetch(ctx, room, &after)
}

func (r *Remote) fetch(ctx context.Context, room string, after *time.Time) ([]models.ChatMessage, error) {
	query := url.Values{}
	query.Set("room", models.NormalizeRoom(room))
	if after != nil {
		query.Set("after", after.Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/api/v1/chat/messages?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat history returned status %d", resp.StatusCode)
	}

	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Send persists the message, carrying the client-assigned id so echoes
// over the delivery channels stay recognizable
func (r *Remote) Send(ctx context.Context, msg *models.ChatMessage) error {
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"id":      msg.ID,
		"content": msg.Content,
		"room":    msg.Room,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/v1/chat/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("chat send returned status %d", resp.StatusCode)
	}
	return nil
}

// Broadcast is satisfied by the server-side fan-out after Send, so the
// REST transport has nothing extra to do
func (r *Remote) Broadcast(ctx context.Context, room string, msg *models.ChatMessage) error {
	return nil
}
