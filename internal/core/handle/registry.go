package handle

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
)

// Registry assigns a stable Handle to each pending-operation instance.
// Instances are keyed by identity, so only pointer-backed settlers are accepted.
type Registry struct {
	mu      sync.RWMutex
	handles map[future.Settler]domain.Handle
	owners  map[domain.Handle]future.Settler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[future.Settler]domain.Handle),
		owners:  make(map[domain.Handle]future.Settler),
	}
}

// For returns the handle of s, assigning a new one on first use.
func (r *Registry) For(s future.Settler) (domain.Handle, error) {
	if err := Validate(s); err != nil {
		return "", err
	}

	r.mu.RLock()
	h, ok := r.handles[s]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check after acquiring the write lock
	if h, ok := r.handles[s]; ok {
		return h, nil
	}

	h = domain.Handle(uuid.Must(uuid.NewV7()).String())
	r.handles[s] = h
	r.owners[h] = s
	return h, nil
}

// Lookup returns the handle of s without assigning one.
func (r *Registry) Lookup(s future.Settler) (domain.Handle, bool) {
	if Validate(s) != nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[s]
	return h, ok
}

// Forget drops the identity behind h.
func (r *Registry) Forget(h domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.owners[h]; ok {
		delete(r.handles, s)
		delete(r.owners, h)
	}
}

// Settled reports whether the settler behind h has completed. Unknown handles
// count as settled since nothing can be stored under them any more.
func (r *Registry) Settled(h domain.Handle) bool {
	r.mu.RLock()
	s, ok := r.owners[h]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// Len returns the number of known identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Validate reports whether s can serve as a handle source.
func Validate(s future.Settler) error {
	if s == nil {
		return fmt.Errorf("%w: nil settler", domain.ErrInvalidHandle)
	}
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: %T is not a pointer", domain.ErrInvalidHandle, s)
	}
	if v.IsNil() {
		return fmt.Errorf("%w: nil %T", domain.ErrInvalidHandle, s)
	}
	return nil
}
