package plugin

import "time"

// Health is a plugin's last-observed dispatch state. Records are created at
// load time and mutated for the process lifetime; they are never removed,
// only overwritten by the next attempt.
type Health struct {
	IsHealthy     bool
	LastError     string
	LastErrorTime int64
	// MissingDependencies is reserved for plugins that report unmet external
	// requirements; the runtime itself never populates it.
	MissingDependencies []string
}

// HealthFor returns a copy of the named plugin's health record. An unknown
// name reads as healthy-by-default, matching a record that has never failed.
func (m *Manager) HealthFor(name string) Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[name]
	if !ok {
		return Health{IsHealthy: true}
	}
	out := *h
	if len(h.MissingDependencies) > 0 {
		out.MissingDependencies = append([]string(nil), h.MissingDependencies...)
	}
	return out
}

func (m *Manager) recordError(name, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[name]
	if !ok {
		h = &Health{}
		m.health[name] = h
	}
	h.IsHealthy = false
	h.LastError = message
	h.LastErrorTime = time.Now().Unix()
}

func (m *Manager) markHealthy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[name]
	if !ok {
		h = &Health{}
		m.health[name] = h
	}
	h.IsHealthy = true
	h.LastError = ""
	h.LastErrorTime = 0
}
