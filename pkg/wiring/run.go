package wiring

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/seolgugu/edgeflow/pkg/concurrency"
	"github.com/seolgugu/edgeflow/pkg/logger"
	"github.com/seolgugu/edgeflow/pkg/supervisor"
)

// Run launches every spec across the given systems, one supervised worker
// per replica, and blocks until SIGTERM/SIGINT. SIGHUP reloads every worker.
//
// When the current process was itself spawned as a worker, Run switches to
// the worker role instead, so a single binary serves both sides.
func Run(ctx context.Context, systems ...*System) error {
	if supervisor.IsWorker() {
		return supervisor.RunWorker()
	}
	if len(systems) == 0 {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Union the specs; systems sharing a path share the interned spec.
	union := map[string]*Spec{}
	for _, sys := range systems {
		for path, spec := range sys.Specs() {
			union[path] = spec
		}
	}

	bk := systems[0].Broker
	if err := bk.Reset(ctx); err != nil {
		logger.L().WarnContext(ctx, "broker reset failed", "error", err)
	}
	brokerCfg := bk.ToConfig()

	type launch struct {
		spec *Spec
		sup  *supervisor.Supervisor
	}
	var launches []launch

	for _, spec := range union {
		cfg := spec.Config
		cfg.Broker = brokerCfg

		blob, err := json.Marshal(cfg)
		if err != nil {
			logger.L().ErrorContext(ctx, "spec does not serialize",
				"node", spec.Name, "error", err)
			continue
		}

		replicas := cfg.Replicas
		if replicas < 1 {
			replicas = 1
		}
		for i := 0; i < replicas; i++ {
			name := spec.Name
			if replicas > 1 {
				name += "-" + strconv.Itoa(i)
			}
			sup := supervisor.New(name, map[string]string{
				supervisor.EnvNodePath:   spec.Path,
				supervisor.EnvNodeName:   spec.Name,
				supervisor.EnvNodeConfig: string(blob),
				supervisor.EnvWorkerID:   uuid.NewString(),
			})
			launches = append(launches, launch{spec: spec, sup: sup})
		}
	}

	logger.L().InfoContext(ctx, "launching system",
		"systems", len(systems), "workers", len(launches))

	// SIGHUP reloads every worker without tearing the system down.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	concurrency.SafeGo(ctx, func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.L().InfoContext(ctx, "reload requested")
				for _, l := range launches {
					l.sup.Reload()
				}
			}
		}
	})

	concurrency.FanOut(ctx, len(launches), func(i int) {
		launches[i].sup.Run(ctx)
	})
	return nil
}
