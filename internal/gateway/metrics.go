package gateway

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type channelMetrics struct {
	received *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	sent     *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func newChannelMetrics(reg prometheus.Registerer) (*channelMetrics, error) {
	m := &channelMetrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "gateway",
			Name:      "messages_received_total",
			Help:      "Inbound device messages decoded, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "gateway",
			Name:      "messages_dropped_total",
			Help:      "Inbound device messages dropped, by reason.",
		}, []string{"reason"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "gateway",
			Name:      "sms_sent_total",
			Help:      "Outbound SMS publish attempts, by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airrelay",
			Subsystem: "gateway",
			Name:      "handlers_in_flight",
			Help:      "Inbound messages currently being handled.",
		}),
	}

	for _, c := range []prometheus.Collector{m.received, m.dropped, m.sent, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering gateway metrics: %w", err)
		}
	}
	return m, nil
}

func (m *channelMetrics) incReceived(k Kind) {
	if m != nil {
		m.received.WithLabelValues(k.String()).Inc()
	}
}

func (m *channelMetrics) incDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *channelMetrics) incSent(result string) {
	if m != nil {
		m.sent.WithLabelValues(result).Inc()
	}
}

func (m *channelMetrics) addInFlight(delta float64) {
	if m != nil {
		m.inFlight.Add(delta)
	}
}
