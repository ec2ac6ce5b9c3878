package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AuthUser is a user record from the auth provider's admin listing
type AuthUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// UserMetadata is the free-form signup data; the referral code travels here
type UserMetadata struct {
	DisplayName  string `json:"display_name"`
	FullName     string `json:"full_name"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

type listUsersResponse struct {
	Users []AuthUser `json:"users"`
}

// AuthAdminClient talks to the auth provider's admin API with a service key
type AuthAdminClient struct {
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
}

func NewAuthAdminClient(baseURL, serviceKey string, httpClient *http.Client) *AuthAdminClient {
	return &AuthAdminClient{BaseURL: baseURL, ServiceKey: serviceKey, HTTPClient: httpClient}
}

// UsersChangedSince lists users created or updated after since
func (c *AuthAdminClient) UsersChangedSince(ctx context.Context, since time.Time) ([]AuthUser, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth admin URL %q: %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath("admin", "users")
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building auth admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth admin request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("auth admin returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out listUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding auth admin response: %w", err)
	}
	return out.Users, nil
}
