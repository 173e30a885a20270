// Package sea implements a multi-process gRPC server supervisor. A
// master process reserves a shared SO_REUSEPORT address, re-executes
// itself into a fixed number of worker processes that each serve an
// independent gRPC server bound to that address, and coordinates
// graceful shutdown of the whole group on termination signals.
package sea

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/lancer-kit/sam"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// EnvWorker marks a spawned process as a worker. The master sets
	// it on every child; the same binary dispatches on its presence.
	EnvWorker = "SEA_WORKER"
	// EnvBindAddr carries the reserved bind address into workers, with
	// port 0 already resolved to the effective port.
	EnvBindAddr = "SEA_BIND_ADDR"
)

// Server is the multi-process server entrypoint. The same instance,
// built the same way by the application, runs either the master
// supervisor or a single worker runtime depending on the process role.
type Server struct {
	cfg    Config
	logger *logrus.Entry

	names     []string
	servicers map[string]Servicer

	registry *Registry

	eventHandler EventHandler
	stopOnce     sync.Once
}

// NewServer returns a new Server with the passed configuration.
func NewServer(cfg Config, logger *logrus.Entry) *Server {
	return &Server{
		cfg: cfg,
		logger: logger.WithFields(logrus.Fields{
			"app":     cfg.AppName,
			"service": "sea-server",
		}),
		servicers: map[string]Servicer{},
		registry:  NewRegistry(),
	}
}

// AddServicer registers a named service attachment. Each worker process
// invokes every registered Servicer exactly once against its own gRPC
// server, so each handler type is instantiated once per worker.
func (s *Server) AddServicer(name string, servicer Servicer) {
	if _, ok := s.servicers[name]; !ok {
		s.names = append(s.names, name)
	}
	s.servicers[name] = servicer
}

// SetEventHandler subscribes the handler to lifecycle notifications.
func (s *Server) SetEventHandler(handler EventHandler) {
	s.eventHandler = handler
}

// Role returns the role of the current process.
func (s *Server) Role() Role {
	if os.Getenv(EnvWorker) != "" {
		return RoleWorker
	}
	return RoleMaster
}

// WorkerStates reports the lifecycle state of every spawned worker by
// pid. Meaningful only in the master process.
func (s *Server) WorkerStates() map[int]sam.State {
	return s.registry.States()
}

// Run blocks for the whole lifetime of the process. In the master it
// returns only after every worker process has been joined and the
// metrics directory cleanup has run. In a worker it returns when the
// server stops serving.
func (s *Server) Run() error {
	if err := s.cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	if s.Role() == RoleWorker {
		return s.runWorker()
	}
	return s.runMaster()
}

func (s *Server) runMaster() error {
	s.runMetricsServer()
	s.runServiceSocket()
	sigCh := notifyTermSignals()

	port, release, err := ReservePort(s.cfg.Host, s.cfg.Port)
	if err != nil {
		// No worker may be left running against a non-reserved port,
		// so startup aborts before any spawn.
		return errors.Wrap(err, "port reservation failed")
	}

	bindAddr := fmt.Sprintf("%s:%d", s.cfg.Host, port)
	s.logger.WithField("addr", bindAddr).
		WithField("workers", s.cfg.Workers).
		Info("starting worker processes")

	for i := 0; i < s.cfg.Workers; i++ {
		cmd, err := s.spawnWorker(bindAddr, i)
		if err != nil {
			_ = release()
			return errors.Wrap(err, "unable to spawn worker")
		}
		s.registry.Track(cmd)
	}

	// Dispatch starts only now: a signal that arrived during the spawn
	// loop is still queued in the channel and is handled here, against
	// the full worker set.
	s.handleSignals(sigCh, s.stopMaster)

	s.registry.WaitAll()

	if err := release(); err != nil {
		s.logger.WithError(err).Warn("unable to release reserved port")
	}

	s.cleanMetricsDir()
	return nil
}

// spawnWorker re-executes the current binary as a worker process bound
// to the reserved address. Crashed workers are not restarted: the join
// loop simply observes the early exit.
func (s *Server) spawnWorker(bindAddr string, idx int) (*exec.Cmd, error) {
	cmd := exec.Command(os.Args[0], os.Args[1:]...) // nolint:gosec
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", EnvWorker, idx),
		fmt.Sprintf("%s=%s", EnvBindAddr, bindAddr),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (s *Server) emit(event Event) {
	if s.eventHandler == nil {
		return
	}
	s.eventHandler(event)
}
