package m328mon

import (
	"sync"

	"go328mon/internal/mcu"
)

type AppStateData struct {
	URL         string
	Connected   bool
	Ready       bool
	Running     bool
	FrequencyHz float64

	Machine    mcu.MachineState
	HasMachine bool
	Snapshots  uint64
	// StackRebuilds counts snapshots that passed the render gate.
	StackRebuilds uint64
	Pongs         uint64
	Echoes        uint64

	LastError     string
	LastMalformed string
	SourcePath    string
}

// StateStore holds the view-facing state of one session. Handlers write
// to it from the bus loop while views read snapshots from their own loop.
type StateStore struct {
	mu sync.RWMutex
	s  AppStateData
}

func newStateStore(url string, frequency float64) *StateStore {
	return &StateStore{s: AppStateData{URL: url, FrequencyHz: frequency}}
}

func (s *StateStore) State() AppStateData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.s
	if st.Machine.Stack != nil {
		stack := make([]uint16, len(st.Machine.Stack))
		copy(stack, st.Machine.Stack)
		st.Machine.Stack = stack
	}
	return st
}

func (s *StateStore) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Connected = connected
	if !connected {
		s.s.Ready = false
		s.s.Running = false
	}
}

func (s *StateStore) setReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Ready = true
}

func (s *StateStore) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Running = running
}

func (s *StateStore) setFrequency(hz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.FrequencyHz = hz
}

func (s *StateStore) setMachine(st mcu.MachineState, rebuilt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Machine = st
	s.s.HasMachine = true
	s.s.Snapshots++
	if rebuilt {
		s.s.StackRebuilds++
	}
}

func (s *StateStore) countPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Pongs++
}

func (s *StateStore) countEcho() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Echoes++
}

func (s *StateStore) setLastError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.LastError = text
}

func (s *StateStore) setLastMalformed(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.LastMalformed = text
}

func (s *StateStore) setSourcePath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.SourcePath = path
}
