package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
)

// SlackSink posts notifications to an incoming webhook
type SlackSink struct {
	webhookURL string
	httpClient *http.Client
}

func NewSlackSink(webhookURL string, timeout time.Duration) *SlackSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

var severityEmoji = map[automation.Severity]string{
	automation.SeverityInfo:     ":information_source:",
	automation.SeverityWarning:  ":warning:",
	automation.SeverityCritical: ":rotating_light:",
}

func (s *SlackSink) Deliver(ctx context.Context, n automation.Notification) error {
	body, err := json.Marshal(slackPayload{Text: slackText(n)})
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func slackText(n automation.Notification) string {
	var b strings.Builder
	if emoji, ok := severityEmoji[n.Severity]; ok {
		b.WriteString(emoji)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "*%s*", n.Title)
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(n.Message)
	}

	keys := make([]string, 0, len(n.Context))
	for k := range n.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n• %s: %v", k, n.Context[k])
	}
	return b.String()
}
