package server

import (
	"net/http"
	"testing"

	"blogforge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	_, app := setupTestServer(t)
	token := signupUser(t, app, "settingsuser")

	resp := doJSON(t, app, http.MethodGet, "/api/settings", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["has_openai_key"])
	assert.Equal(t, float64(models.DefaultSyncIntervalHours), body["sync_interval_hours"])

	resp = doJSON(t, app, http.MethodPut, "/api/settings", token, map[string]any{
		"wordpress_url":       "https://blog.example.com",
		"wordpress_username":  "admin",
		"wordpress_password":  "app-password",
		"openai_api_key":      "sk-test",
		"auto_sync_enabled":   true,
		"sync_interval_hours": 12,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, true, body["has_openai_key"])
	assert.Equal(t, true, body["has_wordpress_auth"])
	assert.Equal(t, true, body["auto_sync_enabled"])
	assert.Equal(t, float64(12), body["sync_interval_hours"])

	t.Run("rejects bad site url", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut, "/api/settings", token, map[string]any{
			"wordpress_url": "not a url",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects bad interval", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut, "/api/settings", token, map[string]any{
			"sync_interval_hours": 0,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
