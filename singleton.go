package birdisle

import "sync"

var (
	defaultMu       sync.Mutex
	defaultInstance *Instance
)

// Default returns the process-wide shared instance, creating it on first
// use. A shared instance that was closed is replaced by a fresh one. opts
// only apply when an instance is created.
func Default(opts ...Option) (*Instance, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultInstance != nil && defaultInstance.listening() {
		return defaultInstance, nil
	}
	inst, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defaultInstance = inst
	return inst, nil
}

// CloseDefault closes the shared instance, if any. The next Default call
// creates a new one.
func CloseDefault() error {
	defaultMu.Lock()
	inst := defaultInstance
	defaultInstance = nil
	defaultMu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.Close()
}
