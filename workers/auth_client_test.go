package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersChangedSince(t *testing.T) {
	since := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "2026-05-01T10:00:00Z", r.URL.Query().Get("since"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{{
				"id":    "u1",
				"email": "u1@example.com",
				"user_metadata": map[string]any{
					"display_name":  "User One",
					"referral_code": "AB12CD34",
				},
				"updated_at": "2026-05-01T11:00:00Z",
			}},
		})
	}))
	defer srv.Close()

	client := NewAuthAdminClient(srv.URL+"/auth/v1", "service-key", srv.Client())
	users, err := client.UsersChangedSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "AB12CD34", users[0].UserMetadata.ReferralCode)
	assert.Equal(t, since.Add(time.Hour), users[0].UpdatedAt)
}

func TestUsersChangedSinceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAuthAdminClient(srv.URL, "wrong", srv.Client())
	_, err := client.UsersChangedSince(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}
