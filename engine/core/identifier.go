package core

import "sync"

// Registry hands out monotonically increasing identifiers for names.
// Asking twice for the same name yields the same identifier; identifiers
// are never reused, so a stale id can never alias a newer resource. Zero
// is never handed out.
type Registry struct {
	mu    sync.Mutex
	next  uint32
	ids   map[string]uint32
	names map[uint32]string
}

func NewRegistry() *Registry {
	return &Registry{
		next:  1,
		ids:   make(map[string]uint32),
		names: make(map[uint32]string),
	}
}

// Acquire returns the id bound to name, creating one if needed. The second
// return value reports whether the id was newly created.
func (r *Registry) Acquire(name string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.ids[name]; ok {
		return id, false
	}
	id := r.next
	r.next++
	r.ids[name] = id
	r.names[id] = name
	return id, true
}

// Lookup returns the id bound to name without creating it.
func (r *Registry) Lookup(name string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[name]
	return id, ok
}

// Name returns the name an id was created for.
func (r *Registry) Name(id uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[id]
	return name, ok
}

// Release forgets the binding of id. A later Acquire with the same name
// creates a fresh id.
func (r *Registry) Release(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.names[id]; ok {
		delete(r.ids, name)
		delete(r.names, id)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
