package syncx

import "sync"

type flightCall[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Flight coalesces concurrent calls with the same key into a single
// execution of fn; late arrivals block until the first call finishes and
// share its result.
type Flight[V any] struct {
	mu    sync.Mutex
	calls map[string]*flightCall[V]
}

func (f *Flight[V]) Do(key string, fn func() (V, error)) (V, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]*flightCall[V])
	}
	if c, ok := f.calls[key]; ok {
		f.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &flightCall[V]{done: make(chan struct{})}
	f.calls[key] = c
	f.mu.Unlock()

	c.val, c.err = fn()

	f.mu.Lock()
	delete(f.calls, key)
	f.mu.Unlock()
	close(c.done)

	return c.val, c.err
}
