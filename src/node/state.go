package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a delta node: Starting, Running or Shutdown.
type State uint32

const (
	// Starting is the initial state, before the first cycle begins.
	Starting State = iota
	// Running means the node follows the cycles.
	Running
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc. Beyond it, work runs on the calling goroutine.
const WGLIMIT = 20

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (s *state) getState() State {
	stateAddr := (*uint32)(&s.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (s *state) setState(st State) {
	stateAddr := (*uint32)(&s.state)
	atomic.StoreUint32(stateAddr, uint32(st))
}

// goFunc runs f in a goroutine tracked by the waitgroup, or inline when
// WGLIMIT goroutines are already running.
func (s *state) goFunc(f func()) {
	if atomic.AddInt32(&s.wgCount, 1) > WGLIMIT {
		atomic.AddInt32(&s.wgCount, -1)
		f()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer atomic.AddInt32(&s.wgCount, -1)
		f()
	}()
}

func (s *state) waitRoutines() {
	s.wg.Wait()
}

func (s *state) routines() int32 {
	return atomic.LoadInt32(&s.wgCount)
}
