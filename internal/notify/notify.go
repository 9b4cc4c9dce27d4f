package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alerteval/internal/config"
	"alerteval/internal/engine"
	"alerteval/internal/metrics"
	"alerteval/internal/template"
)

// ChannelSender sends one rendered message to one channel.
// Params: context and assembled message.
// Returns: transport error when the send fails.
type ChannelSender interface {
	Name() string
	Kind() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders notices and fans them out to resolved channels.
// Params: channel registry, per-channel senders, retry policy, and UI base URL.
// Returns: engine.Notifier implementation; dispatch is fire-and-forget per
// channel and never affects the history write.
type Dispatcher struct {
	registry *Registry
	senders  map[string]ChannelSender
	retry    config.NotifyRetry
	logger   *slog.Logger
	baseURL  string
}

// NewDispatcher builds the dispatcher from the configured channel set.
// Params: notify config, UI base URL for deep links, and logger.
// Returns: dispatcher with one sender per configured channel.
func NewDispatcher(cfg config.NotifyConfig, baseURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	senders := make(map[string]ChannelSender, len(cfg.Channel))
	for _, channel := range cfg.Channel {
		sender := newSenderForChannel(channel)
		if sender == nil {
			continue
		}
		senders[strings.ToLower(channel.Name)] = sender
	}
	return &Dispatcher{
		registry: NewRegistry(cfg.Channel),
		senders:  senders,
		retry:    cfg.Retry,
		logger:   logger,
		baseURL:  baseURL,
	}
}

// Registry exposes the channel registry for shorthand resolution.
// Params: none.
// Returns: registry built from the configured channels.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// newSenderForChannel builds the transport sender for one channel entry.
// Params: validated channel config.
// Returns: sender or nil when the kind is unknown.
func newSenderForChannel(channel config.ChannelConfig) ChannelSender {
	switch channel.Kind {
	case config.ChannelKindTelegram:
		return NewTelegramSender(channel)
	case config.ChannelKindWebhook:
		return NewWebhookSender(channel)
	default:
		return nil
	}
}

// Notify renders one notice and sends it to every resolved channel.
// Params: context and notice from the evaluator.
// Returns: number of successful sends. The channel set is the alert's
// configured channel plus every target resolved from shorthand in the alert
// text, deduplicated; one channel's failure never blocks another.
func (d *Dispatcher) Notify(ctx context.Context, notice engine.Notice) int {
	msg := BuildMessage(notice, d.baseURL)
	body, targets := template.Render(notice.Alert.Message, msg.Context, d.registry)
	msg.Body = strings.TrimSpace(body)

	names := make([]string, 0, 1+len(targets))
	seen := make(map[string]struct{}, 1+len(targets))
	appendName := func(name string) {
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		names = append(names, key)
	}
	if notice.Alert.ChannelRef != "" {
		appendName(notice.Alert.ChannelRef)
	}
	for _, target := range targets {
		appendName(target.Name)
	}

	sent := 0
	for _, name := range names {
		sender, ok := d.senders[name]
		if !ok {
			d.logger.Warn("notify channel is not configured", "channel", name, "alert_id", notice.Alert.ID)
			continue
		}
		if err := d.sendWithRetry(ctx, sender, msg); err != nil {
			metrics.NotificationsFailedTotal.WithLabelValues(sender.Kind()).Inc()
			d.logger.Error("notify send failed",
				"channel", sender.Name(),
				"kind", sender.Kind(),
				"alert_id", notice.Alert.ID,
				"group", notice.Result.Group.Label(),
				"error", err.Error(),
			)
			continue
		}
		metrics.NotificationsSentTotal.WithLabelValues(sender.Kind()).Inc()
		sent++
	}
	return sent
}

// sendWithRetry sends one message applying the configured retry policy.
// Params: sender, message, and dispatcher retry settings.
// Returns: final error after retries are exhausted.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, msg Message) error {
	if !d.retry.Enabled {
		return sender.Send(ctx, msg)
	}

	attempt := 0
	backoff := time.Duration(d.retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(d.retry.MaxMS) * time.Millisecond
	for {
		attempt++
		err := sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if d.retry.MaxAttempts > 0 && attempt >= d.retry.MaxAttempts {
			return fmt.Errorf("channel %s failed after %d attempts: %w", sender.Name(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if strings.EqualFold(d.retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
