package handler

import (
	"context"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// BrokerHandler publishes frames to a single broker topic. The topic is the
// source node's name; multiple outgoing edges sharing the topic collapse into
// one handler at wiring time.
type BrokerHandler struct {
	broker   broker.Broker
	topic    string
	capacity int
}

// NewBrokerHandler creates the handler and persists the topic capacity so
// every publish trims to it. Capacity 1 for REALTIME edges, larger for
// DURABLE.
func NewBrokerHandler(b broker.Broker, topic string, capacity int) *BrokerHandler {
	if capacity < 1 {
		capacity = 1
	}
	if err := b.Trim(context.Background(), topic, capacity); err != nil {
		logger.L().Warn("failed to persist topic capacity", "topic", topic, "error", err)
	}
	return &BrokerHandler{broker: b, topic: topic, capacity: capacity}
}

// Topic returns the broker topic this handler publishes to.
func (h *BrokerHandler) Topic() string { return h.topic }

// Send encodes once and publishes; the broker trims to the persisted
// capacity on every push.
func (h *BrokerHandler) Send(f *frame.Frame) {
	if f == nil {
		return
	}
	h.broker.Push(context.Background(), h.topic, frame.Encode(f))
}

// Close is a no-op; the broker connection belongs to the node.
func (h *BrokerHandler) Close() {}
