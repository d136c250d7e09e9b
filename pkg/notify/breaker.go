package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerOptions struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerNotifier stops calling a failing transport until OpenTimeout passes,
// so a mail outage does not stall every scanner run on timeouts.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerNotifier(next Notifier, opts BreakerOptions, log *zap.Logger) *BreakerNotifier {
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("notifier circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerNotifier{next: next, cb: cb}
}

func (n *BreakerNotifier) Send(ctx context.Context, msg Message) error {
	_, err := n.cb.Execute(func() (struct{}, error) {
		return struct{}{}, n.next.Send(ctx, msg)
	})
	return err
}

func (n *BreakerNotifier) State() gobreaker.State {
	return n.cb.State()
}
