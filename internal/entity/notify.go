package entity

import "strings"

// Change describes one real mutation.
type Change struct {
	Op        Op
	Path      []string
	GlobalIDs []GlobalID
}

// Notifier receives change notifications. Implementations must not call
// back into the Store synchronously.
type Notifier interface {
	Notify(Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// Notify calls f(c).
func (f NotifierFunc) Notify(c Change) { f(c) }

// silent reports whether changes to e are excluded from notification. The
// decision rests on the unit alone, so schema entities in a user unit notify.
func (s *Store) silent(e *Entity) bool {
	name := e.unitName
	return name == UnitEntity || strings.HasSuffix(name, "_meta") || s.reserved[name]
}

func (s *Store) notify(op Op, p Path, e *Entity) {
	if s.notifier == nil || s.silent(e) {
		return
	}
	s.notifier.Notify(Change{
		Op:        op,
		Path:      p.Strings(),
		GlobalIDs: []GlobalID{e.gid},
	})
}
