// Package notify delivers one-time codes and account notices to users.
// Delivery runs through an ordered [Chain] of strategies; the first
// strategy that succeeds wins, and later ones are only tried after the
// earlier ones fail. Strategies never see anything but the composed
// message, so swapping SMTP for an HTTP provider is a construction-time
// decision.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrAllStrategiesFailed indicates every strategy in the chain failed to
// deliver the message.
var ErrAllStrategiesFailed = errors.New("all delivery strategies failed")

// Message is one composed notification ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a message over one transport.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Chain tries each strategy in order until one succeeds. Each attempt gets
// its own timeout so a hung provider cannot consume the whole deadline.
type Chain struct {
	strategies []Notifier
	timeout    time.Duration
	logger     *zap.Logger
}

// NewChain builds a chain over the given strategies. perAttempt bounds each
// strategy's send; zero disables the per-attempt timeout.
func NewChain(perAttempt time.Duration, logger *zap.Logger, strategies ...Notifier) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		strategies: strategies,
		timeout:    perAttempt,
		logger:     logger,
	}
}

func (c *Chain) Name() string { return "chain" }

// Send attempts delivery through each strategy in order.
func (c *Chain) Send(ctx context.Context, msg Message) error {
	if len(c.strategies) == 0 {
		return ErrAllStrategiesFailed
	}

	var lastErr error
	for _, strategy := range c.strategies {
		attemptCtx := ctx
		cancel := func() {}
		if c.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}

		err := strategy.Send(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Warn("delivery strategy failed",
			zap.String("strategy", strategy.Name()),
			zap.String("to", msg.To),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return errors.Join(ErrAllStrategiesFailed, lastErr)
}
