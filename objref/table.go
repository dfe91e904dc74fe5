// Package objref implements the reference table: the single owner of every
// object exposed across the call boundary by handle. The other side holds
// only the integer handle; it reads through Find and never deletes.
package objref

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/interopmesh/core"
)

// Table maps handles to live objects. Handles come from a strictly
// increasing counter starting at 1 and are never reused. It is safe for
// concurrent use.
type Table struct {
	mu      sync.RWMutex
	objects map[core.Handle]any
	nextID  atomic.Int64
}

// NewTable creates an empty reference table.
func NewTable() *Table {
	return &Table{objects: make(map[core.Handle]any)}
}

// Track stores obj and returns its new handle. Tracking the same object twice
// yields two handles.
func (t *Table) Track(obj any) core.Handle {
	h := core.Handle(t.nextID.Add(1))

	t.mu.Lock()
	t.objects[h] = obj
	t.mu.Unlock()

	return h
}

// TrackRef tracks a handle wrapper and binds the wrapper to its handle. A
// wrapper that is already tracked by this table keeps its handle.
func (t *Table) TrackRef(ref core.Handled) core.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h := ref.RefHandle(); h != 0 {
		if existing, ok := t.objects[h]; ok && existing == any(ref) {
			return h
		}
	}

	h := core.Handle(t.nextID.Add(1))
	t.objects[h] = ref
	// Binding to the wrapper's own target cannot mismatch.
	_ = ref.BindRef(h, ref.RefTarget())
	return h
}

// Find returns the object tracked under h.
func (t *Table) Find(h core.Handle) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, ok := t.objects[h]
	if !ok {
		return nil, notTracked(h)
	}
	return obj, nil
}

// Release removes h. Releasing an unknown or already released handle fails
// with the same error as Find.
func (t *Table) Release(h core.Handle) error {
	t.mu.Lock()
	obj, ok := t.objects[h]
	if ok {
		delete(t.objects, h)
	}
	t.mu.Unlock()

	if !ok {
		return notTracked(h)
	}
	if ref, isRef := obj.(core.Handled); isRef && ref.RefHandle() == h {
		ref.Unbind()
	}
	return nil
}

// Len returns the number of tracked objects.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

// ReleaseAll drops every entry and returns how many were released.
func (t *Table) ReleaseAll() int {
	t.mu.Lock()
	objects := t.objects
	t.objects = make(map[core.Handle]any)
	t.mu.Unlock()

	for h, obj := range objects {
		if ref, isRef := obj.(core.Handled); isRef && ref.RefHandle() == h {
			ref.Unbind()
		}
	}
	return len(objects)
}

func notTracked(h core.Handle) error {
	return core.Errorf(core.ErrNotFound, "no tracked object with id %d", h)
}
