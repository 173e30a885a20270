package sea

import (
	"os/exec"
	"sync"

	"github.com/lancer-kit/sam"
	"github.com/pkg/errors"
)

// Worker process lifecycle states.
const (
	WStateSpawned sam.State = "Spawned"
	WStateRunning sam.State = "Running"
	WStateExited  sam.State = "Exited"
	WStateKilled  sam.State = "Killed"
)

// newProcSM returns filled state machine of the worker process lifecycle
//
// (*) -> [Spawned] -> [Running] -> [Exited]
//                         |
//                         ↓
//                     [Killed]
func newProcSM() sam.StateMachine {
	procSM := sam.NewStateMachine()
	_ = procSM.AddTransitions(WStateSpawned, WStateRunning)
	_ = procSM.AddTransitions(WStateRunning, WStateExited, WStateKilled)
	procSM.SetState(WStateSpawned)
	return procSM
}

// WorkerProc is a handle to one spawned worker process.
type WorkerProc struct {
	sam.StateMachine
	cmd *exec.Cmd
}

// PID returns the OS process identifier of the worker.
func (w *WorkerProc) PID() int {
	return w.cmd.Process.Pid
}

// Registry tracks the worker processes owned by the master. The spawn
// loop, the join loop and the shutdown goroutine access it concurrently,
// so every method locks.
type Registry struct {
	mutex sync.RWMutex
	procs []*WorkerProc
}

func NewRegistry() *Registry {
	return &Registry{procs: []*WorkerProc{}}
}

// Track adds a started process to the registry.
func (r *Registry) Track(cmd *exec.Cmd) *WorkerProc {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	proc := &WorkerProc{StateMachine: newProcSM(), cmd: cmd}
	_ = proc.GoTo(WStateRunning)
	r.procs = append(r.procs, proc)
	return proc
}

// Len returns the number of tracked processes, dead or alive.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.procs)
}

// States returns the lifecycle state of every tracked process by pid.
func (r *Registry) States() map[int]sam.State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	states := map[int]sam.State{}
	for _, proc := range r.procs {
		states[proc.PID()] = proc.State()
	}
	return states
}

// Alive returns the processes that have neither exited nor been killed.
func (r *Registry) Alive() []*WorkerProc {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	alive := make([]*WorkerProc, 0, len(r.procs))
	for _, proc := range r.procs {
		if proc.State() == WStateRunning {
			alive = append(alive, proc)
		}
	}
	return alive
}

// Kill forcibly terminates the process and marks it killed.
func (r *Registry) Kill(proc *WorkerProc) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if proc.State() != WStateRunning {
		return nil
	}
	if err := proc.cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "unable to kill worker")
	}
	return proc.GoTo(WStateKilled)
}

// WaitAll joins every tracked process and returns once all of them have
// exited, whether on their own or by force. This is what keeps the
// master process alive.
func (r *Registry) WaitAll() {
	r.mutex.RLock()
	procs := make([]*WorkerProc, len(r.procs))
	copy(procs, r.procs)
	r.mutex.RUnlock()

	wg := sync.WaitGroup{}
	for _, proc := range procs {
		wg.Add(1)
		go func(proc *WorkerProc) {
			defer wg.Done()

			// Wait error is expected for crashed and killed workers,
			// the join only cares about the exit itself.
			_ = proc.cmd.Wait()

			r.mutex.Lock()
			if proc.State() == WStateRunning {
				_ = proc.GoTo(WStateExited)
			}
			r.mutex.Unlock()
		}(proc)
	}
	wg.Wait()
}
