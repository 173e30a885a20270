package sea

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// Servicer attaches one gRPC service implementation to a server.
//
//	func(srv *grpc.Server) {
//		helloworldpb.RegisterGreeterServer(srv, newGreeter())
//	}
type Servicer func(*grpc.Server)

// runWorker is the whole life of a worker process: build the server,
// bind the shared address with SO_REUSEPORT, attach every registered
// servicer and serve until told to stop. A bind or serving failure is
// fatal to this process; the master observes it as an early exit.
func (s *Server) runWorker() error {
	logger := s.logger.WithField("role", string(RoleWorker))

	bindAddr := os.Getenv(EnvBindAddr)
	if bindAddr == "" {
		bindAddr = s.cfg.BindAddr()
	}

	var opts []grpc.ServerOption
	if s.cfg.Threads > 0 {
		opts = append(opts, grpc.NumStreamWorkers(uint32(s.cfg.Threads)))
	}
	srv := grpc.NewServer(opts...)

	for _, name := range s.names {
		s.servicers[name](srv)
	}

	lc := net.ListenConfig{Control: setReusePort}
	lis, err := lc.Listen(context.Background(), "tcp", bindAddr)
	if err != nil {
		return errors.Wrap(err, "worker bind failed")
	}

	s.handleSignals(notifyTermSignals(), func(sig os.Signal) { s.stopWorker(sig, srv) })

	s.emit(InfoEvent(KindServerStarted, "worker is serving").
		SetField("addr", bindAddr).
		SetField("pid", os.Getpid()))
	logger.WithField("addr", bindAddr).Info("server started")

	// Hangs here for as long as the server is serving; returns nil
	// once the graceful stop completes and the process may end.
	return errors.Wrap(srv.Serve(lis), "worker serve failed")
}

// stopWorker is the worker branch of shutdown: refuse new work and let
// in-flight handlers finish within the drain window. The drain deadline
// is shorter than the master's grace so the worker has a chance to end
// before the master escalates to a kill. Whatever is still running at
// the deadline is dropped by the hard stop.
func (s *Server) stopWorker(sig os.Signal, srv *grpc.Server) {
	drain := s.cfg.Drain()

	s.emit(WarnEvent(KindServerStopped, "worker is shutting down").
		SetField("signal", sig.String()).
		SetField("pid", os.Getpid()))
	s.logger.WithField("role", string(RoleWorker)).
		WithField("signal", sig.String()).
		Warnf("worker process received signal, stopping within %s", drain)

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(drain):
		srv.Stop()
	}
}
