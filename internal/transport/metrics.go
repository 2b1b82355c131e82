package transport

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dep2p/go-natpmp/pkg/protocol"
)

// 结果标签
const (
	OutcomeSuccess   = "success"
	OutcomeRefused   = "refused"
	OutcomeMalformed = "malformed"
	OutcomeExhausted = "exhausted"
	OutcomeNetwork   = "network"
	OutcomeError     = "error"
)

// Metrics 传输层指标
//
// nil *Metrics 可以安全使用，所有记录操作都会被忽略。
type Metrics struct {
	// Attempts 发送的请求数据报，按 opcode 区分
	Attempts *prometheus.CounterVec

	// Results 调用结果，按 opcode 与 outcome 区分
	Results *prometheus.CounterVec

	// Discarded 丢弃的非网关来源数据报
	Discarded prometheus.Counter

	// RoundTrip 从发送到收到网关响应的耗时
	RoundTrip prometheus.Histogram
}

// NewMetrics 创建并注册指标
//
// reg 为 nil 时只创建不注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natpmp",
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Request datagrams sent to the gateway.",
		}, []string{"opcode"}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natpmp",
			Subsystem: "transport",
			Name:      "results_total",
			Help:      "Completed requests by outcome.",
		}, []string{"opcode", "outcome"}),
		Discarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "natpmp",
			Subsystem: "transport",
			Name:      "discarded_datagrams_total",
			Help:      "Datagrams dropped because they did not come from the gateway.",
		}),
		RoundTrip: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "natpmp",
			Subsystem: "transport",
			Name:      "round_trip_seconds",
			Help:      "Time between sending a request and receiving the gateway reply.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *Metrics) attempt(op protocol.Opcode) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) discard() {
	if m == nil {
		return
	}
	m.Discarded.Inc()
}

func (m *Metrics) roundTrip(d time.Duration) {
	if m == nil {
		return
	}
	m.RoundTrip.Observe(d.Seconds())
}

func (m *Metrics) result(op protocol.Opcode, err error) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(op.String(), Outcome(err)).Inc()
}

// Outcome 将调用结果归类为指标标签
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, protocol.ErrResponse):
		return OutcomeRefused
	case errors.Is(err, protocol.ErrDeserialize):
		return OutcomeMalformed
	case errors.Is(err, protocol.ErrUnsupported):
		return OutcomeExhausted
	case errors.Is(err, protocol.ErrNetwork):
		return OutcomeNetwork
	default:
		return OutcomeError
	}
}
