// Package metrics 运行指标统计，默认关闭，调用Init()后开启
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enabled bool

	registry      *prometheus.Registry
	publishTotal  *prometheus.CounterVec
	consumeTotal  *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	payloadSize   prometheus.Histogram
	deliveryDelay *prometheus.HistogramVec
)

// Init 初始化metrics
func Init() *prometheus.Registry {
	if enabled {
		return registry
	}

	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupbus_publish_total",
			Help: "Number of published messages",
		},
		[]string{"group"},
	)

	consumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupbus_consume_total",
			Help: "Number of consumed messages",
		},
		[]string{"group"},
	)

	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupbus_decode_errors_total",
			Help: "Number of messages that failed to decode",
		},
		[]string{"group"},
	)

	payloadSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "groupbus_payload_size",
			Help: "Size of published payload",
			Buckets: []float64{
				256,
				1024,      // 1k
				4 * 1024,  // 4k
				16 * 1024, // 16k
				32 * 1024, // 32k
				64 * 1024, // 64k default max size
			},
		},
	)

	deliveryDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupbus_delivery_delay",
			Help:    "Duration of message from publish to consume",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	registry = prometheus.NewRegistry()
	registry.MustRegister(publishTotal)
	registry.MustRegister(consumeTotal)
	registry.MustRegister(decodeErrors)
	registry.MustRegister(payloadSize)
	registry.MustRegister(deliveryDelay)

	enabled = true

	return registry
}

// IncrPublish 统计发布消息
func IncrPublish(group string, size int) {
	if !enabled {
		return
	}

	publishTotal.WithLabelValues(group).Inc()
	payloadSize.Observe(float64(size))
}

// IncrConsume 统计消费消息
func IncrConsume(group string, sentAt time.Time) {
	if !enabled {
		return
	}

	consumeTotal.WithLabelValues(group).Inc()
	deliveryDelay.WithLabelValues(group).Observe(time.Since(sentAt).Seconds())
}

// IncrDecodeError 统计解码失败消息
func IncrDecodeError(group string) {
	if !enabled {
		return
	}

	decodeErrors.WithLabelValues(group).Inc()
}
