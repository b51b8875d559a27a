package paywall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPAccessChecker asks the backend's access endpoint whether the
// current user can watch an event
type HTTPAccessChecker struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewHTTPAccessChecker creates a checker against the given API base URL
func NewHTTPAccessChecker(baseURL string, tokens TokenSource) *HTTPAccessChecker {
	return &HTTPAccessChecker{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPAccessChecker) HasAccess(ctx context.Context, eventID string) (bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		// Not signed in resolves to no access, not an error
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/access/"+url.PathEscape(eventID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("access check returned status %d", resp.StatusCode)
	}

	var out struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Active, nil
}
