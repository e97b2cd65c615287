package notification

import (
	"context"
	"time"

	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"
)

// MirroringNotifier decorates an EventNotifier with a best-effort mirror of
// every event to a message broker. Subscriber delivery is never delayed by
// the mirror: broker publishes happen in a separate goroutine.
type MirroringNotifier struct {
	inner         port.EventNotifier
	broker        port.EventPublisher
	subjectPrefix string
	logger        *logger.Logger
}

// NewMirroringNotifier wraps inner; broker may be nil (mirroring disabled)
func NewMirroringNotifier(inner port.EventNotifier, broker port.EventPublisher, subjectPrefix string, log *logger.Logger) *MirroringNotifier {
	return &MirroringNotifier{
		inner:         inner,
		broker:        broker,
		subjectPrefix: subjectPrefix,
		logger:        log,
	}
}

func (n *MirroringNotifier) Publish(event dto.Event) {
	n.inner.Publish(event)

	if n.broker == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		subject := n.subjectPrefix + "." + event.Type
		if err := n.broker.PublishEvent(ctx, subject, event); err != nil {
			n.logger.Warn("Failed to mirror event to broker", "subject", subject, "error", err.Error())
		}
	}()
}

func (n *MirroringNotifier) SubscriberCount() int {
	return n.inner.SubscriberCount()
}
