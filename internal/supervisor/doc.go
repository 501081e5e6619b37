// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor provides process supervision for Marquee using suture v4.

# Tree

	marquee (root)
	├── storage
	│   ├── event-store-gc          (badger event store only)
	│   └── peer-index
	├── pipeline
	│   ├── quality-recorder
	│   └── event-follower:<topic>  (gochannel publishing only)
	└── serving
	    ├── cache-sweeper:recommendations
	    └── http-server

Each layer is its own supervisor, so a service that keeps failing is backed
off inside its layer while the others keep running. Supervisor events
(restarts, backoff, timeouts) are logged through sutureslog.

# Shutdown

Layers stop one at a time in reverse start order: serving, then pipeline,
then storage. The HTTP server finishes its in-flight requests before the
recorder drains its queue, and the recorder's last batch is written before
the event store stops collecting garbage.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: cfg.Supervisor.FailureThreshold,
	    FailureBackoff:   cfg.Supervisor.FailureBackoff,
	    ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	tree.AddStorageService(peers)
	tree.AddPipelineService(recorder)
	tree.AddServingService(resultCache)
	tree.AddServingService(services.NewHTTPServerService(server, services.HTTPOptions{
	    Addr:            cfg.Server.Addr(),
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	    OnDrain:         handler.BeginDrain,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = tree.Serve(ctx)

Each layer gets ShutdownTimeout to stop. UnstoppedServiceReport lists any
service that did not.
*/
package supervisor
