package registry

type ChangeKind string

const (
	ChangeCreated   ChangeKind = "created"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeCleared   ChangeKind = "cleared"
	ChangeRebuilt   ChangeKind = "rebuilt"
	ChangeImported  ChangeKind = "imported"
	ChangeDocuments ChangeKind = "documents"
)

// ChangeEvent is delivered after a mutation has been applied. IDs is set for
// ChangeDocuments only.
type ChangeEvent struct {
	Index string
	Kind  ChangeKind
	IDs   []string
}

// OnChange registers fn for every subsequent change and returns a function
// that unregisters it. Listeners run synchronously on the mutating goroutine
// and must not call back into mutators.
func (r *Registry) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	r.listenersMu.Lock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = fn
	r.listenersMu.Unlock()
	return func() {
		r.listenersMu.Lock()
		delete(r.listeners, id)
		r.listenersMu.Unlock()
	}
}

func (r *Registry) notify(ev ChangeEvent) {
	r.listenersMu.RLock()
	fns := make([]func(ChangeEvent), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
