// Package memory provides an in-memory HAL with monotonic handles and
// failure injection, used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/linkfabric/swagent/pkg/orch"
)

// Object is one HAL object: its handle and last-applied fields.
type Object struct {
	Handle orch.Handle
	Fields map[string]string
}

// HAL implements orch.HAL over in-memory maps.
type HAL struct {
	mu      sync.Mutex
	next    uint64
	objects map[string]map[string]*Object // objType -> key
	handles map[orch.Handle]string        // handle -> key, per-process unique
	fail    map[string]error              // "op:objType" -> one-shot injected error
}

// New creates an empty HAL.
func New() *HAL {
	return &HAL{
		objects: make(map[string]map[string]*Object),
		handles: make(map[orch.Handle]string),
		fail:    make(map[string]error),
	}
}

// FailWith injects a one-shot error for the next call of op
// ("create", "set" or "remove") on objType.
func (h *HAL) FailWith(op, objType string, err error) {
	h.mu.Lock()
	h.fail[op+":"+objType] = err
	h.mu.Unlock()
}

// Seed pre-populates an object, as if created by a prior run.
func (h *HAL) Seed(objType, key string, fields map[string]string) orch.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createLocked(objType, key, fields)
}

// Create implements orch.HAL. Creating an existing key returns the
// existing handle together with orch.ErrObjectExists.
func (h *HAL) Create(ctx context.Context, objType, key string, fields []orch.FieldValue) (orch.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.takeFailure("create", objType); err != nil {
		return orch.NullHandle, err
	}
	if obj, ok := h.objects[objType][key]; ok {
		return obj.Handle, fmt.Errorf("create %s %s: %w", objType, key, orch.ErrObjectExists)
	}
	return h.createLocked(objType, key, fieldMap(fields)), nil
}

// Set implements orch.HAL.
func (h *HAL) Set(ctx context.Context, objType string, handle orch.Handle, fields []orch.FieldValue) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.takeFailure("set", objType); err != nil {
		return err
	}
	obj, ok := h.lookupByHandle(objType, handle)
	if !ok {
		return fmt.Errorf("set %s handle 0x%x: %w", objType, uint64(handle), orch.ErrObjectNotFound)
	}
	for _, fv := range fields {
		obj.Fields[fv.Field] = fv.Value
	}
	return nil
}

// Remove implements orch.HAL.
func (h *HAL) Remove(ctx context.Context, objType string, handle orch.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.takeFailure("remove", objType); err != nil {
		return err
	}
	key, ok := h.handles[handle]
	if !ok {
		return fmt.Errorf("remove %s handle 0x%x: %w", objType, uint64(handle), orch.ErrObjectNotFound)
	}
	delete(h.objects[objType], key)
	delete(h.handles, handle)
	return nil
}

// Get returns the object stored for a key, if any.
func (h *HAL) Get(objType, key string) (*Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[objType][key]
	return obj, ok
}

// Count returns the number of objects of a type.
func (h *HAL) Count(objType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects[objType])
}

func (h *HAL) createLocked(objType, key string, fields map[string]string) orch.Handle {
	if fields == nil {
		fields = make(map[string]string)
	}
	h.next++
	handle := orch.Handle(h.next)
	if h.objects[objType] == nil {
		h.objects[objType] = make(map[string]*Object)
	}
	h.objects[objType][key] = &Object{Handle: handle, Fields: fields}
	h.handles[handle] = key
	return handle
}

func (h *HAL) lookupByHandle(objType string, handle orch.Handle) (*Object, bool) {
	key, ok := h.handles[handle]
	if !ok {
		return nil, false
	}
	obj, ok := h.objects[objType][key]
	return obj, ok
}

func (h *HAL) takeFailure(op, objType string) error {
	id := op + ":" + objType
	err, ok := h.fail[id]
	if !ok {
		return nil
	}
	delete(h.fail, id)
	return err
}

func fieldMap(fields []orch.FieldValue) map[string]string {
	out := make(map[string]string, len(fields))
	for _, fv := range fields {
		out[fv.Field] = fv.Value
	}
	return out
}
