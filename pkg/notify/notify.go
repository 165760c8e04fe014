package notify

import (
	"context"

	"github.com/Gobusters/ectologger"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
)

// Notifier posts a run outcome somewhere humans or other services will see it
type Notifier interface {
	Name() string
	Notify(ctx context.Context, title, message string, success bool) error
}

// Multi fans a notification out to every configured notifier.
// Failures are logged and never returned; notifications are best effort.
type Multi struct {
	notifiers []Notifier
	logger    ectologger.Logger
}

// NewMulti creates a fan-out notifier. Nil notifiers are ignored.
func NewMulti(logger ectologger.Logger, notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of notifiers
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify sends to every notifier
func (m *Multi) Notify(ctx context.Context, title, message string, success bool) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, title, message, success); err != nil {
			metrics.RecordNotification(n.Name(), "error")
			m.logger.WithContext(ctx).WithError(err).WithFields(appctx.Fields(ctx)).
				Warnf("Failed to send %s notification", n.Name())
			continue
		}
		metrics.RecordNotification(n.Name(), "success")
	}
}
