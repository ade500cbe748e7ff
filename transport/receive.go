package transport

import "sync"

// ReceiveSettings shape how a transport receives from one queue. Zero values
// keep the transport defaults.
type ReceiveSettings struct {
	MaxMessages       int32
	VisibilityTimeout int32
	WaitTime          int32
	// SkipDelete leaves acknowledged messages on the queue.
	SkipDelete bool
}

// ReceiveSettingsRegistry holds the receive settings of each bound queue,
// keyed by queue name. A nil registry ignores writes and finds nothing.
type ReceiveSettingsRegistry struct {
	mu      sync.RWMutex
	byQueue map[string]ReceiveSettings
}

// NewReceiveSettingsRegistry creates an empty registry.
func NewReceiveSettingsRegistry() *ReceiveSettingsRegistry {
	return &ReceiveSettingsRegistry{byQueue: make(map[string]ReceiveSettings)}
}

// Set stores the settings for queue, replacing earlier ones.
func (r *ReceiveSettingsRegistry) Set(queue string, settings ReceiveSettings) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byQueue[queue] = settings
}

// Get returns the settings stored for queue.
func (r *ReceiveSettingsRegistry) Get(queue string) (ReceiveSettings, bool) {
	if r == nil {
		return ReceiveSettings{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	settings, ok := r.byQueue[queue]
	return settings, ok
}
