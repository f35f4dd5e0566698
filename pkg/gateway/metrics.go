package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus mirrors of the dashboard stats, scraped from /metrics.
var (
	framesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgeflow",
		Subsystem: "gateway",
		Name:      "frames_ingested_total",
		Help:      "Frames accepted from upstream TCP producers.",
	}, []string{"topic"})

	bufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgeflow",
		Subsystem: "gateway",
		Name:      "buffer_depth",
		Help:      "Entries held in the per-topic jitter buffer.",
	}, []string{"topic"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgeflow",
		Subsystem: "gateway",
		Name:      "broker_queue_depth",
		Help:      "Control-plane queue length per topic.",
	}, []string{"topic"})

	topicFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgeflow",
		Subsystem: "gateway",
		Name:      "topic_fps",
		Help:      "Frame arrival rate over the sliding window.",
	}, []string{"topic"})

	ingressConns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgeflow",
		Subsystem: "gateway",
		Name:      "ingress_connections",
		Help:      "Open upstream TCP connections.",
	})
)
