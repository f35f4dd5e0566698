// Package handler materializes a node's outbound edges.
//
// Each edge becomes exactly one sender: a Broker handler publishing to the
// local topic named after the source node, or a TCP handler streaming
// length-prefixed frames to a gateway ingress. A TCP handler returns after an
// enqueue; a broker handler returns after one broker push. Neither
// propagates transport failures.
package handler

import "github.com/seolgugu/edgeflow/pkg/frame"

// Handler is a per-edge sender. Send blocks at most for one broker push and
// never on a TCP connection; Close releases the sender's resources and is
// idempotent.
type Handler interface {
	Send(f *frame.Frame)
	Close()
}
