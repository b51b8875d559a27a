package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fightzone/backend/internal/models"
	"fightzone/backend/shared/redis"
)

// Store persists entitlement records keyed by normalized email and by
// checkout session id. The session record carries the email so a verify
// lookup can resolve the account without a second read.
type Store interface {
	// Put writes the record under email:{email} and, when sessionID is
	// non-empty, under session:{sessionID} with the email embedded.
	Put(ctx context.Context, sessionID, email string, rec models.AccessRecord) error
	GetByEmail(ctx context.Context, email string) (*models.AccessRecord, error)
	GetBySession(ctx context.Context, sessionID string) (*models.AccessRecord, error)

	// PutEventGrant records a one-time purchase of a single event
	PutEventGrant(ctx context.Context, email, eventID string) error
	HasEventGrant(ctx context.Context, email, eventID string) (bool, error)
}

func emailKey(email string) string {
	return "email:" + models.NormalizeEmail(email)
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func eventKey(email, eventID string) string {
	return fmt.Sprintf("event:%s:%s", models.NormalizeEmail(email), eventID)
}

// RedisStore is the production Store backed by the shared redis client
type RedisStore struct {
	kv *redis.Client
}

// NewRedisStore creates a redis-backed access store
func NewRedisStore(kv *redis.Client) *RedisStore {
	return &RedisStore{kv: kv}
}

func (s *RedisStore) Put(ctx context.Context, sessionID, email string, rec models.AccessRecord) error {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil
	}

	// Save by email (main lookup)
	rec.Email = ""
	emailJSON, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, emailKey(normalized), string(emailJSON), 0); err != nil {
		return err
	}

	// Save session mapping (for quick verify)
	if sessionID != "" {
		rec.Email = normalized
		sessionJSON, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := s.kv.Set(ctx, sessionKey(sessionID), string(sessionJSON), 0); err != nil {
			return err
		}
	}

	return nil
}

func (s *RedisStore) GetByEmail(ctx context.Context, email string) (*models.AccessRecord, error) {
	return s.get(ctx, emailKey(email))
}

func (s *RedisStore) GetBySession(ctx context.Context, sessionID string) (*models.AccessRecord, error) {
	return s.get(ctx, sessionKey(sessionID))
}

func (s *RedisStore) get(ctx context.Context, key string) (*models.AccessRecord, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rec models.AccessRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) PutEventGrant(ctx context.Context, email, eventID string) error {
	if models.NormalizeEmail(email) == "" || eventID == "" {
		return nil
	}
	return s.kv.Set(ctx, eventKey(email, eventID), "1", 0)
}

func (s *RedisStore) HasEventGrant(ctx context.Context, email, eventID string) (bool, error) {
	return s.kv.Exists(ctx, eventKey(email, eventID))
}
