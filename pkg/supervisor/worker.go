package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/broker/adapters/dualredis"
	"github.com/seolgugu/edgeflow/pkg/config"
	"github.com/seolgugu/edgeflow/pkg/logger"
	"github.com/seolgugu/edgeflow/pkg/node"
)

// IsWorker reports whether this process was spawned as a node worker.
func IsWorker() bool {
	return os.Getenv(EnvRole) == RoleWorker
}

// RunWorker is the child-side entrypoint: rebuild the node from its injected
// environment and drive it until a termination signal.
//
// A worker never refuses to start over a bad node: an unknown path or an
// unparseable config substitutes the framework-error node so downstream
// gateways render the failure instead of starving.
func RunWorker() error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	path := os.Getenv(EnvNodePath)

	cfg, cfgErr := node.ParseConfig(settings.NodeConfig)
	if cfgErr != nil {
		logger.L().ErrorContext(ctx, "node config unusable", "worker", settings.NodeName, "error", cfgErr)
		cfg = node.Config{Name: settings.NodeName, Type: node.KindProducer}
	}

	var runner node.Runner
	switch {
	case cfgErr != nil:
		runner = node.NewLoadError(cfgErr.Error())
	default:
		runner = node.Build(path)
	}

	bk := buildBroker(ctx, settings, cfg.Broker)
	defer bk.Close()

	if err := runner.Configure(cfg, bk); err != nil {
		return err
	}

	logger.L().InfoContext(ctx, "worker running",
		"node", cfg.Name, "path", path, "kind", runner.Kind())
	return runner.Execute(ctx)
}

// buildBroker re-establishes the system broker from its serialized config,
// falling back to the environment-derived dual-Redis endpoints.
func buildBroker(ctx context.Context, settings *config.Settings, cfg map[string]any) broker.Broker {
	if len(cfg) > 0 {
		if b, err := broker.FromConfig(cfg); err == nil {
			return b
		} else {
			logger.L().WarnContext(ctx, "broker config unusable, using environment defaults", "error", err)
		}
	}
	return dualredis.NewFromSettings(settings)
}
