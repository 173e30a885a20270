package sea

import (
	"os"
	"os/signal"
	"syscall"
	"time"
)

// termSignals is the fixed set of termination signals. Any of them
// triggers the same shutdown handling, there is no per-signal logic.
var termSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGHUP,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// Role of a process is fixed at startup, before any signal can arrive:
// the master supervises worker processes and never serves requests, a
// worker owns exactly one server instance.
type Role string

const (
	RoleMaster Role = "master"
	RoleWorker Role = "worker"
)

// notifyTermSignals installs the termination-signal channel of this
// process. Installation and dispatch are separate steps: the master
// installs before spawning but dispatches only once the worker set is
// complete, so a signal landing mid-spawn is queued in the channel
// instead of triggering a shutdown against a partial registry.
func notifyTermSignals() chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, termSignals...)
	return sigCh
}

// handleSignals starts the dedicated dispatch goroutine which runs the
// role-specific shutdown on the first termination signal. Shutdown is
// single-fire: repeated signals during an in-progress shutdown are
// ignored.
func (s *Server) handleSignals(sigCh chan os.Signal, onStop func(sig os.Signal)) {
	go func() {
		for sig := range sigCh {
			sig := sig
			s.stopOnce.Do(func() { onStop(sig) })
		}
	}()
}

// stopMaster is the master branch of shutdown: broadcast the stop, give
// the workers the whole grace period to drain on their own, then kill
// whoever is still alive. After it returns the join loop unblocks.
func (s *Server) stopMaster(sig os.Signal) {
	grace := s.cfg.Grace()

	s.emit(WarnEvent(KindServerStopped, "master is shutting down").
		SetField("signal", sig.String()).
		SetField("grace", grace.String()))
	s.logger.WithField("signal", sig.String()).
		Warnf("master process received signal, sleep %s to wait workers done", grace)

	time.Sleep(grace)

	for _, proc := range s.registry.Alive() {
		s.logger.WithField("pid", proc.PID()).
			Warnf("master found process still alive after %s timeout", grace)
		if err := s.registry.Kill(proc); err != nil {
			s.logger.WithError(err).WithField("pid", proc.PID()).
				Error("unable to kill worker process")
		}
	}

	s.logger.Warn("master exit")
}
