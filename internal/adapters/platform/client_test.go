package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

func newPlatformServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var tokens int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokens, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/campaigns/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokens
}

func gatewayConfig(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:      baseURL,
		TokenURL:     baseURL + "/oauth/token",
		ClientID:     "automation",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:      true,
			MaxFailures:  2,
			ResetTimeout: time.Minute,
		},
	}
}

func TestClient_Execute(t *testing.T) {
	server, tokens := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/campaigns/camp-1/actions", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var req actionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, automation.ActionAdjustBudget, req.Action)
		assert.Equal(t, -20.0, req.Params["change_percent"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"detail":"budget lowered to 80.00"}`))
	})

	client, err := NewClient(gatewayConfig(server.URL), logger.Discard())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := client.Execute(context.Background(), "camp-1", automation.ActionAdjustBudget,
			map[string]interface{}{"change_percent": -20.0})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, "budget lowered to 80.00", res.Detail)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(tokens), "token is cached")
}

func TestClient_ExecuteReplies(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantOK    bool
		wantErr   bool
		wantInMsg string
	}{
		{name: "accepted", status: http.StatusOK, body: `{"ok":true}`, wantOK: true},
		{name: "platform says no", status: http.StatusOK, body: `{"ok":false,"message":"campaign archived"}`, wantInMsg: "campaign archived"},
		{name: "rejected", status: http.StatusUnprocessableEntity, body: `{"message":"budget below minimum"}`, wantInMsg: "budget below minimum"},
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantErr: true},
		{name: "garbage", status: http.StatusOK, body: "<html>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			cfg := gatewayConfig(server.URL)
			cfg.CircuitBreaker.Enabled = false
			client, err := NewClient(cfg, logger.Discard())
			require.NoError(t, err)

			res, err := client.Execute(context.Background(), "camp-1", automation.ActionPauseCampaign, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransient))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Contains(t, res.Detail, tt.wantInMsg)
		})
	}
}

func TestClient_CircuitOpensOnServerErrors(t *testing.T) {
	var calls int32
	server, _ := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, err := NewClient(gatewayConfig(server.URL), logger.Discard())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := client.Execute(context.Background(), "camp-1", automation.ActionPauseCampaign, nil)
		require.Error(t, err)
	}

	_, err = client.Execute(context.Background(), "camp-1", automation.ActionPauseCampaign, nil)
	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_RejectionDoesNotTripBreaker(t *testing.T) {
	server, _ := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	client, err := NewClient(gatewayConfig(server.URL), logger.Discard())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		res, err := client.Execute(context.Background(), "camp-1", automation.ActionResumeCampaign, nil)
		require.NoError(t, err)
		assert.False(t, res.OK)
	}
}

func TestClient_HonoursContext(t *testing.T) {
	server, _ := newPlatformServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	cfg := gatewayConfig(server.URL)
	cfg.TokenURL = ""
	client, err := NewClient(cfg, logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Execute(ctx, "camp-1", automation.ActionPauseCampaign, nil)
	require.Error(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.GatewayConfig{}, logger.Discard())
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}
