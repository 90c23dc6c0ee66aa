// Package notify tells operators about market lifecycle events (creation,
// resolution, large trades) over Telegram and Discord. Notifications can be
// filtered by event name.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs, e.g. "telegram".
	Name() string
}

// Options filters what a Notifier delivers.
type Options struct {
	// Events lists the event names to deliver. Empty delivers all.
	Events []string
	// MinTrade suppresses trades whose collateral input, in native units, is
	// below it. Nil announces every trade.
	MinTrade *uint256.Int
}

// Notifier fans notifications out to its senders concurrently.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	minTrade *uint256.Int
	logger   *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders.
func NewNotifier(senders []Sender, opts Options, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(opts.Events))
	for _, e := range opts.Events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		minTrade: opts.MinTrade,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be delivered by anyone.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify delivers title and message to every sender when event passes the
// filter. Every sender is tried; the failures are joined.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "notifier: send failed",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %s: %w", event, err)
	}
	n.logger.DebugContext(ctx, "notifier: sent", slog.String("event", event), slog.String("title", title))
	return nil
}
