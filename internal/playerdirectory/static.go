package playerdirectory

import (
	"context"
	"fmt"
	"sync"
)

// Static resolves names from an in-memory registration map, falling
// back to a name derived from the device id itself for devices that
// never registered one. Used in tests and as the no-Postgres default.
type Static struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewStatic builds a Static directory, optionally pre-seeded.
func NewStatic(seed map[string]string) *Static {
	names := make(map[string]string, len(seed))
	for k, v := range seed {
		names[k] = v
	}
	return &Static{names: names}
}

// Register assigns name to deviceID for future resolution.
func (s *Static) Register(deviceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[deviceID] = name
}

func (s *Static) ResolveName(_ context.Context, deviceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.names[deviceID]; ok {
		return name, nil
	}
	return fallbackName(deviceID), nil
}

func fallbackName(deviceID string) string {
	suffix := deviceID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("Player-%s", suffix)
}
