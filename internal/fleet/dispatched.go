package fleet

import "sync"

// DispatchedSet records which drones have been sent a depart command and for
// which mission. An entry blocks further dispatch to that drone until it is
// released on return, on disconnect, or when the dispatch never reached a
// session.
type DispatchedSet struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewDispatchedSet() *DispatchedSet {
	return &DispatchedSet{entries: make(map[string]string)}
}

// TryAdd inserts droneID unless it is already present. The check and the
// insert happen under one lock.
func (s *DispatchedSet) TryAdd(droneID, missionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[droneID]; ok {
		return false
	}
	s.entries[droneID] = missionID
	return true
}

func (s *DispatchedSet) Release(droneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, droneID)
}

// ReleaseIf drops the entry only if it still refers to missionID.
func (s *DispatchedSet) ReleaseIf(droneID, missionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[droneID]
	if !ok || cur != missionID {
		return false
	}
	delete(s.entries, droneID)
	return true
}

func (s *DispatchedSet) Contains(droneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[droneID]
	return ok
}

func (s *DispatchedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
