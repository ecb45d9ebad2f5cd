// Package notify delivers automation notifications to in-app, email and
// Slack channels.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
)

// Sink delivers a notification to one channel
type Sink interface {
	Deliver(ctx context.Context, n automation.Notification) error
}

// Notifier fans a notification out to the sinks of its channels. Delivery
// failures are logged and never returned.
type Notifier struct {
	sinks   map[automation.Channel]Sink
	timeout time.Duration
	logger  *logrus.Logger
}

func NewNotifier(timeout time.Duration, logger *logrus.Logger) *Notifier {
	return &Notifier{
		sinks:   make(map[automation.Channel]Sink),
		timeout: timeout,
		logger:  logger,
	}
}

// Register routes a channel to a sink; call before Send is used
func (n *Notifier) Register(channel automation.Channel, sink Sink) {
	n.sinks[channel] = sink
}

// Channels lists the configured channels
func (n *Notifier) Channels() []automation.Channel {
	channels := make([]automation.Channel, 0, len(n.sinks))
	for _, c := range []automation.Channel{automation.ChannelInApp, automation.ChannelEmail, automation.ChannelSlack} {
		if _, ok := n.sinks[c]; ok {
			channels = append(channels, c)
		}
	}
	return channels
}

func (n *Notifier) Send(ctx context.Context, notification automation.Notification) {
	seen := make(map[automation.Channel]bool, len(notification.Channels))
	for _, channel := range notification.Channels {
		if seen[channel] {
			continue
		}
		seen[channel] = true

		log := n.logger.WithFields(logrus.Fields{
			"org_id":  notification.OrgID,
			"channel": channel,
			"kind":    notification.Kind,
		})

		sink, ok := n.sinks[channel]
		if !ok {
			log.Warn("Notification channel not configured, skipping")
			continue
		}

		if err := n.deliver(ctx, sink, notification); err != nil {
			log.WithError(err).Error("Failed to deliver notification")
			continue
		}
		log.Debug("Notification delivered")
	}
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, notification automation.Notification) error {
	if n.timeout <= 0 {
		return sink.Deliver(ctx, notification)
	}
	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return sink.Deliver(callCtx, notification)
}
