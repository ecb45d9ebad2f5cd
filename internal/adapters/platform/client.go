// Package platform is the HTTP Platform Gateway: it forwards campaign
// mutations to the ad-platform service.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/version"
)

const maxErrorBody = 4 << 10

// Client implements automation.PlatformGateway over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *apperrors.CircuitBreaker
	logger     *logrus.Logger
}

// actionRequest is the body of POST /v1/campaigns/{id}/actions
type actionRequest struct {
	Action automation.ActionType  `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// actionResponse is the platform service reply
type actionResponse struct {
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewClient builds a gateway client. When TokenURL is set every request
// carries a client-credentials bearer token.
func NewClient(cfg config.GatewayConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.Configuration("platform gateway", fmt.Errorf("base_url is required"))
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, apperrors.Configuration("platform gateway", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		ccfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		httpClient = ccfg.Client(tokenCtx)
		httpClient.Timeout = timeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = apperrors.NewCircuitBreaker(apperrors.CircuitBreakerConfig{
			Name:         "platform-gateway",
			MaxFailures:  cfg.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
			Logger:       logger,
		})
	}
	return c, nil
}

// Execute applies one action to a campaign. Transport failures and 5xx
// replies are errors; a 4xx reply is a rejected action.
func (c *Client) Execute(ctx context.Context, campaignID string, action automation.ActionType, params map[string]interface{}) (automation.GatewayResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return automation.GatewayResult{}, apperrors.Transient("platform rate limit", err)
	}

	var result automation.GatewayResult
	call := func(ctx context.Context) error {
		var err error
		result, err = c.post(ctx, campaignID, action, params)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"action":      action,
		}).Error("Platform gateway call failed")
		return automation.GatewayResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, campaignID string, action automation.ActionType, params map[string]interface{}) (automation.GatewayResult, error) {
	body, err := json.Marshal(actionRequest{Action: action, Params: params})
	if err != nil {
		return automation.GatewayResult{}, fmt.Errorf("failed to encode action: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/campaigns/%s/actions", c.baseURL, url.PathEscape(campaignID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return automation.GatewayResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "campaign-automation/"+version.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return automation.GatewayResult{}, apperrors.Transient("platform request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return automation.GatewayResult{}, apperrors.Transient("platform request",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	case resp.StatusCode >= 400:
		var reply actionResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &reply) == nil && reply.Message != "" {
			detail = reply.Message
		}
		return automation.GatewayResult{OK: false, Detail: fmt.Sprintf("platform rejected %s (%d): %s", action, resp.StatusCode, detail)}, nil
	}

	var reply actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return automation.GatewayResult{}, apperrors.Transient("platform response", err)
	}
	if reply.Detail == "" {
		reply.Detail = reply.Message
	}
	return automation.GatewayResult{OK: reply.OK, Detail: reply.Detail}, nil
}
