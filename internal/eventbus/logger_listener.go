package eventbus

import (
	"context"

	"github.com/annel0/voxel-engine/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог компонента eventbus.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	logger := logging.GetComponentLogger(logging.ComponentEventBus)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logger.Trace("%s %s src=%s dst=%s seq=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Target, ev.Sequence, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Логирование событий шины включено")
	return sub, nil
}
