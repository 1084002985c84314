package pool

import (
	"context"
)

type NotificationKind string

const (
	NotifyStatusChanged NotificationKind = "pool.status_changed"
	NotifyPoolCancelled NotificationKind = "pool.cancelled"
	NotifyPoolFunded    NotificationKind = "pool.funded"
)

type Notification struct {
	Kind            NotificationKind
	Pool            *Pool
	Event           *Event
	NotifyInvestors bool
}

// Notifier delivers investor-facing messages after a transition has committed.
// Delivery failures are logged by the implementation and never roll back state.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// NotificationFor picks the message kind for a committed transition.
func NotificationFor(p *Pool, e *Event, notifyInvestors bool) Notification {
	kind := NotifyStatusChanged
	switch e.ToStatus {
	case StatusCancelled:
		kind = NotifyPoolCancelled
	case StatusFunded:
		kind = NotifyPoolFunded
	}
	return Notification{Kind: kind, Pool: p, Event: e, NotifyInvestors: notifyInvestors}
}
