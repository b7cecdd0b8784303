package replication

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики репликации. Один экземпляр может разделяться
// публикатором и приёмником одного процесса.
type Metrics struct {
	batches       *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	pending       prometheus.Gauge
	droppedStates prometheus.Counter
	retransmits   prometheus.Counter
}

// NewMetrics создаёт незарегистрированные счётчики
func NewMetrics() *Metrics {
	return &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "replication",
			Name:      "batches_total",
			Help:      "Отправленные и принятые пакеты по типу сообщения.",
		}, []string{"type", "direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "replication",
			Name:      "bytes_total",
			Help:      "Размер сжатых пакетов по типу сообщения.",
		}, []string{"type", "direction"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "replication",
			Name:      "pending_envelopes",
			Help:      "Пакеты, ожидающие подтверждения.",
		}),
		droppedStates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "replication",
			Name:      "dropped_states_total",
			Help:      "Отброшенные повреждённые записи состояний.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "replication",
			Name:      "retransmits_total",
			Help:      "Повторно отправленные пакеты.",
		}),
	}
}

// Register регистрирует счётчики в реестре
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.batches, m.bytes, m.pending, m.droppedStates, m.retransmits} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(msgType, direction string, size int) {
	m.batches.WithLabelValues(msgType, direction).Inc()
	m.bytes.WithLabelValues(msgType, direction).Add(float64(size))
}
