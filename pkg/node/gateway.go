package node

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// GatewayInterface is an ingress surface hosted by a gateway node (e.g. the
// TCP+HTTP web interface in pkg/gateway). Start blocks until ctx is
// canceled.
type GatewayInterface interface {
	// Bind hands the interface the node's broker for queue introspection.
	Bind(b broker.Broker)

	// Start serves until ctx is canceled or a fatal listen error occurs.
	Start(ctx context.Context) error
}

// Gateway hosts one or more ingress interfaces. It does not publish.
type Gateway struct {
	Base

	interfaces []GatewayInterface
}

// NewGateway wraps the ingress interfaces to host.
func NewGateway(interfaces ...GatewayInterface) *Gateway {
	return &Gateway{interfaces: interfaces}
}

func (g *Gateway) Kind() Kind { return KindGateway }

// Execute starts every interface and blocks until shutdown.
func (g *Gateway) Execute(ctx context.Context) error {
	defer g.CloseHandlers()

	logger.L().InfoContext(ctx, "gateway started",
		"node", g.Name, "interfaces", len(g.interfaces))

	eg, ctx := errgroup.WithContext(ctx)
	for _, iface := range g.interfaces {
		iface.Bind(g.Broker())
		eg.Go(func() error { return iface.Start(ctx) })
	}
	return eg.Wait()
}
