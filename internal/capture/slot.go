package capture

import (
	"sync"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// DescriptorSlot holds a track descriptor that is either uninitialized or
// registered. Callers must check Get's second result before using it.
type DescriptorSlot struct {
	mu   sync.RWMutex
	desc types.TrackDescriptor
	set  bool
}

// Set registers desc, replacing any earlier value
func (s *DescriptorSlot) Set(desc types.TrackDescriptor) {
	s.mu.Lock()
	s.desc = desc
	s.set = true
	s.mu.Unlock()
}

// Get returns the descriptor and whether it was registered
func (s *DescriptorSlot) Get() (types.TrackDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc, s.set
}

// Registered reports whether Set was called since the last Clear
func (s *DescriptorSlot) Registered() bool {
	_, ok := s.Get()
	return ok
}

// Clear returns the slot to uninitialized
func (s *DescriptorSlot) Clear() {
	s.mu.Lock()
	s.desc = types.TrackDescriptor{}
	s.set = false
	s.mu.Unlock()
}
