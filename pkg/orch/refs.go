package orch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ReferencedObject tracks one live or recently-deleted object: the
// names of objects depending on it, the table-qualified names it
// references per field, its HAL handle, and the pending-removal flag.
type ReferencedObject struct {
	// DependedBy holds names (without table) of objects depending on
	// this one.
	DependedBy map[string]struct{}
	// References maps a field of this object to the table-qualified
	// names it references through that field.
	References map[string][]string
	Handle     Handle
	// PendingRemoval marks an object whose removal was requested while
	// it still had dependents; it is finalized the instant the last
	// dependent detaches.
	PendingRemoval bool
}

// RemoveFunc is invoked when an object's removal is finalized, after
// the graph lock is released. Wire it to the HAL remove primitive.
// The graph entry is already erased when the callback runs and
// finalization is never rolled back, so a failing backend remove must
// be retried or escalated by the callback itself.
type RemoveFunc func(table, name string, handle Handle)

type finalized struct {
	table  string
	name   string
	handle Handle
}

// RefMap is the process-scoped object-reference graph: table-type name
// to object name to ReferencedObject. Populated lazily as objects are
// created, pruned when objects are fully removed and unreferenced.
//
// All access is serialized by one internal mutex; the remove callback
// runs outside the lock.
type RefMap struct {
	mu      sync.Mutex
	types   map[string]map[string]*ReferencedObject
	remover RemoveFunc
	logger  *zap.Logger
}

// NewRefMap creates an empty reference graph. remover may be nil.
func NewRefMap(remover RemoveFunc, logger *zap.Logger) *RefMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefMap{
		types:   make(map[string]map[string]*ReferencedObject),
		remover: remover,
		logger:  logger,
	}
}

// Set registers an object with its HAL handle, creating the graph node
// if needed. Called when an object's creating task first succeeds or
// when pre-existing state is rehydrated.
func (m *RefMap) Set(table, name string, h Handle) {
	m.mu.Lock()
	obj := m.getOrCreate(table, name)
	obj.Handle = h
	m.mu.Unlock()
}

// DoesObjectExist reports whether the object is in the graph and
// returns its handle.
func (m *RefMap) DoesObjectExist(table, name string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.lookup(table, name)
	if !ok {
		return NullHandle, false
	}
	return obj.Handle, true
}

// IsObjectBeingReferenced reports whether any object depends on the
// named one.
func (m *RefMap) IsObjectBeingReferenced(table, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.lookup(table, name)
	return ok && len(obj.DependedBy) > 0
}

// RemoveObject removes the object from the graph if nothing depends on
// it, detaching the references it holds and invoking the remove
// callback. If dependents exist, the object is only marked pending
// removal and false is returned; it is finalized automatically when
// the last dependent detaches. Removing an absent object is a no-op.
func (m *RefMap) RemoveObject(table, name string) bool {
	m.mu.Lock()
	obj, ok := m.lookup(table, name)
	if !ok {
		m.mu.Unlock()
		return true
	}
	if n := len(obj.DependedBy); n > 0 {
		obj.PendingRemoval = true
		m.mu.Unlock()
		m.logger.Info("object removal deferred, still referenced",
			zap.String("table", table),
			zap.String("object", name),
			zap.Int("dependents", n))
		return false
	}
	fins := m.finalizeLocked(table, name)
	m.mu.Unlock()
	m.runRemover(fins)
	return true
}

// SetObjectReference records that obj's field references the given
// table-qualified object names, replacing any previous references the
// field held and keeping the dependents sets symmetric.
func (m *RefMap) SetObjectReference(table, objName, field string, refs []string) {
	m.mu.Lock()
	fins := m.setObjectReferenceLocked(table, objName, field, refs)
	m.mu.Unlock()
	m.runRemover(fins)
}

// RemoveMeFromObjsReferencedByMe detaches obj from everything its
// field references, cascade-finalizing referenced objects whose
// removal was pending and whose last dependent this was. When
// removeField is true the field entry itself is dropped.
func (m *RefMap) RemoveMeFromObjsReferencedByMe(table, objName, field string, removeField bool) {
	m.mu.Lock()
	var fins []finalized
	if obj, ok := m.lookup(table, objName); ok {
		fins = m.detachLocked(objName, obj.References[field])
		if removeField {
			delete(obj.References, field)
		} else {
			obj.References[field] = nil
		}
	}
	m.mu.Unlock()
	m.runRemover(fins)
}

// ResolveFieldRef resolves a tuple field that encodes a single object
// reference into refTable. On success the dependency edge is
// registered for (depTable, depName) and the resolved handle plus the
// table-qualified name are returned. On any non-success status the
// graph is left unmodified.
func (m *RefMap) ResolveFieldRef(depTable, depName, field, refTable string, t Tuple) (Handle, string, RefResolveStatus) {
	value, status := refFieldValue(t, field)
	if status != ResolveSuccess {
		return NullHandle, "", status
	}
	if strings.Contains(value, ListItemDelimiter) {
		return NullHandle, "", ResolveMultipleInstances
	}

	m.mu.Lock()
	obj, ok := m.lookup(refTable, value)
	if !ok {
		m.mu.Unlock()
		return NullHandle, "", ResolveNotResolved
	}
	handle := obj.Handle
	qualified := refTable + Delimiter + value
	fins := m.setObjectReferenceLocked(depTable, depName, field, []string{qualified})
	m.mu.Unlock()
	m.runRemover(fins)
	return handle, qualified, ResolveSuccess
}

// ResolveFieldRefArray resolves a tuple field that encodes a delimited
// list of object references into refTable. All members must resolve;
// on any non-success status no edge is inserted.
func (m *RefMap) ResolveFieldRefArray(depTable, depName, field, refTable string, t Tuple) ([]Handle, []string, RefResolveStatus) {
	value, status := refFieldValue(t, field)
	if status != ResolveSuccess {
		return nil, nil, status
	}

	names := strings.Split(value, ListItemDelimiter)
	handles := make([]Handle, 0, len(names))
	qualified := make([]string, 0, len(names))

	m.mu.Lock()
	for _, name := range names {
		if name == "" {
			m.mu.Unlock()
			return nil, nil, ResolveFailure
		}
		obj, ok := m.lookup(refTable, name)
		if !ok {
			m.mu.Unlock()
			return nil, nil, ResolveNotResolved
		}
		handles = append(handles, obj.Handle)
		qualified = append(qualified, refTable+Delimiter+name)
	}
	fins := m.setObjectReferenceLocked(depTable, depName, field, qualified)
	m.mu.Unlock()
	m.runRemover(fins)
	return handles, qualified, ResolveSuccess
}

// ParseReference validates a raw reference value against a table and
// returns the object name it denotes. The reference wrapper markers
// are honored; the object must already exist in the graph.
func (m *RefMap) ParseReference(table, ref string) (string, bool) {
	name, ok := stripRef(ref)
	if !ok || name == "" {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, found := m.lookup(table, name); !found {
		return "", false
	}
	return name, true
}

// ObjectReferenceInfo renders one graph node for diagnostics, in
// deterministic order.
func (m *RefMap) ObjectReferenceInfo(table, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.lookup(table, name)
	if !ok {
		return fmt.Sprintf("%s%s%s: not found", table, Delimiter, name)
	}

	dependents := make([]string, 0, len(obj.DependedBy))
	for d := range obj.DependedBy {
		dependents = append(dependents, d)
	}
	sort.Strings(dependents)

	fields := make([]string, 0, len(obj.References))
	for f := range obj.References {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s handle=0x%x pendingRemoval=%t", table, Delimiter, name, uint64(obj.Handle), obj.PendingRemoval)
	fmt.Fprintf(&b, " dependents=[%s]", strings.Join(dependents, ListItemDelimiter))
	b.WriteString(" references{")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=[%s]", f, strings.Join(obj.References[f], ListItemDelimiter))
	}
	b.WriteString("}")
	return b.String()
}

// refFieldValue finds the reference field in the tuple and strips the
// wrapper markers. A repeated field is ambiguous.
func refFieldValue(t Tuple, field string) (string, RefResolveStatus) {
	var value string
	hits := 0
	for _, fv := range t.Fields {
		if fv.Field == field {
			value = fv.Value
			hits++
		}
	}
	if hits == 0 {
		return "", ResolveFieldNotFound
	}
	if hits > 1 {
		return "", ResolveMultipleInstances
	}
	inner, ok := stripRef(value)
	if !ok {
		return "", ResolveFailure
	}
	if inner == "" {
		return "", ResolveEmpty
	}
	return inner, ResolveSuccess
}

// stripRef removes the reference wrapper markers. A bare value is
// accepted; an unbalanced wrapper is malformed.
func stripRef(v string) (string, bool) {
	start := strings.HasPrefix(v, RefStart)
	end := strings.HasSuffix(v, RefEnd)
	if start != end {
		return "", false
	}
	if start {
		return v[len(RefStart) : len(v)-len(RefEnd)], true
	}
	return v, true
}

func (m *RefMap) lookup(table, name string) (*ReferencedObject, bool) {
	objs, ok := m.types[table]
	if !ok {
		return nil, false
	}
	obj, ok := objs[name]
	return obj, ok
}

func (m *RefMap) getOrCreate(table, name string) *ReferencedObject {
	objs, ok := m.types[table]
	if !ok {
		objs = make(map[string]*ReferencedObject)
		m.types[table] = objs
	}
	obj, ok := objs[name]
	if !ok {
		obj = &ReferencedObject{
			DependedBy: make(map[string]struct{}),
			References: make(map[string][]string),
			Handle:     NullHandle,
		}
		objs[name] = obj
	}
	return obj
}

// setObjectReferenceLocked replaces the field's references for obj.
// Only edges the new set actually drops are detached: a re-stated
// reference keeps its edge throughout, so an object pending removal
// cannot finalize under a dependent that still references it.
func (m *RefMap) setObjectReferenceLocked(table, objName, field string, refs []string) []finalized {
	obj := m.getOrCreate(table, objName)
	var fins []finalized
	if old := obj.References[field]; len(old) > 0 {
		kept := make(map[string]struct{}, len(refs))
		for _, q := range refs {
			kept[q] = struct{}{}
		}
		var dropped []string
		for _, q := range old {
			if _, ok := kept[q]; !ok {
				dropped = append(dropped, q)
			}
		}
		fins = m.detachLocked(objName, dropped)
	}
	obj.References[field] = refs
	for _, q := range refs {
		refTable, refName, ok := splitQualified(q)
		if !ok {
			continue
		}
		if refObj, found := m.lookup(refTable, refName); found {
			refObj.DependedBy[objName] = struct{}{}
		}
	}
	return fins
}

// detachLocked removes depName from the dependents of each qualified
// referenced object and finalizes deferred removals whose last
// dependent this was.
func (m *RefMap) detachLocked(depName string, refs []string) []finalized {
	var fins []finalized
	for _, q := range refs {
		refTable, refName, ok := splitQualified(q)
		if !ok {
			continue
		}
		refObj, found := m.lookup(refTable, refName)
		if !found {
			continue
		}
		delete(refObj.DependedBy, depName)
		if refObj.PendingRemoval && len(refObj.DependedBy) == 0 {
			fins = append(fins, m.finalizeLocked(refTable, refName)...)
		}
	}
	return fins
}

// finalizeLocked erases the object from the graph, then detaches the
// references it held, cascading into deferred removals. The object's
// own entry is recorded before the cascade's, so the remover always
// sees a dependent before the objects it referenced.
func (m *RefMap) finalizeLocked(table, name string) []finalized {
	obj, ok := m.lookup(table, name)
	if !ok {
		return nil
	}
	fins := []finalized{{table: table, name: name, handle: obj.Handle}}
	delete(m.types[table], name)
	if len(m.types[table]) == 0 {
		delete(m.types, table)
	}
	fields := make([]string, 0, len(obj.References))
	for f := range obj.References {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fins = append(fins, m.detachLocked(name, obj.References[f])...)
	}
	return fins
}

func (m *RefMap) runRemover(fins []finalized) {
	if m.remover == nil {
		return
	}
	for _, f := range fins {
		m.logger.Info("object removal finalized",
			zap.String("table", f.table),
			zap.String("object", f.name))
		m.remover(f.table, f.name, f.handle)
	}
}

func splitQualified(q string) (table, name string, ok bool) {
	idx := strings.Index(q, Delimiter)
	if idx <= 0 || idx == len(q)-1 {
		return "", "", false
	}
	return q[:idx], q[idx+1:], true
}
