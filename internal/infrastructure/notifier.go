package infrastructure

import (
	"context"

	"Poolfund/internal/domain/pool"
	"Poolfund/internal/logger"
)

// LogNotifier writes pool notifications to the application log. Delivery to
// investors is done by whatever consumes those log lines.
type LogNotifier struct{}

var _ pool.Notifier = LogNotifier{}

func NewNotifier() pool.Notifier {
	return LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, n pool.Notification) {
	if n.Pool == nil || n.Event == nil {
		return
	}
	logger.Info().
		Str("kind", string(n.Kind)).
		Str("pool_id", n.Pool.Id.String()).
		Str("from_status", string(n.Event.FromStatus)).
		Str("to_status", string(n.Event.ToStatus)).
		Str("reason", n.Event.Reason).
		Bool("notify_investors", n.NotifyInvestors).
		Msg("pool notification")
}
