package alerting

import (
	"fmt"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/kwestby/ciwatch/internal/datastore/entities"
	"github.com/kwestby/ciwatch/internal/logger"
)

// defaultDispatchTimeout bounds how long one notification delivery may take.
const defaultDispatchTimeout = 10 * time.Second

// Dispatcher routes firings to their configured channel. The browser
// channel needs no delivery beyond the persisted AlertEvent the UI already
// reads; slack and email deliver through shoutrrr service URLs held in the
// rule's destination.
type Dispatcher struct {
	log     logger.Logger
	timeout time.Duration

	// sendFn is swappable for tests; defaults to shoutrrr.Send.
	sendFn func(rawURL, message string) error
}

// NewDispatcher creates a Dispatcher. timeout <= 0 uses the default.
func NewDispatcher(log logger.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		log:     log,
		timeout: timeout,
		sendFn:  shoutrrr.Send,
	}
}

// Dispatch implements ActionFunc and is called by the evaluator when a rule
// fires. Delivery failures are logged, never surfaced: notification
// transport must not affect evaluation or ingestion.
func (d *Dispatcher) Dispatch(rule *entities.AlertRule, event *entities.AlertEvent) {
	switch rule.Channel {
	case ChannelBrowser:
		// The persisted event is the browser notification.
	case ChannelSlack, ChannelEmail:
		d.send(rule, event)
	default:
		d.log.Warn("unknown alert channel",
			logger.String("channel", rule.Channel),
			logger.Uint64("rule_id", uint64(rule.ID)))
	}
}

func (d *Dispatcher) send(rule *entities.AlertRule, event *entities.AlertEvent) {
	if rule.Destination == "" {
		d.log.Warn("alert rule has no destination",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("channel", rule.Channel))
		return
	}
	// shoutrrr.Send takes no context, so the deadline is enforced from the
	// outside. A delivery that outlives the timer keeps running in its
	// goroutine but no longer blocks evaluation.
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.sendFn(rule.Destination, renderMessage(rule, event))
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			d.log.Error("failed to deliver alert notification",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("channel", rule.Channel),
				logger.Error(err))
		}
	case <-timer.C:
		d.log.Error("alert notification delivery timed out",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("channel", rule.Channel),
			logger.Duration("timeout", d.timeout))
	}
}

// renderMessage formats the notification text for external channels.
func renderMessage(rule *entities.AlertRule, event *entities.AlertEvent) string {
	return fmt.Sprintf("ciwatch alert: %s: %s for %s is %.2f (threshold %.2f)",
		rule.Name, rule.Metric, event.Repo, event.Value, event.Threshold)
}
