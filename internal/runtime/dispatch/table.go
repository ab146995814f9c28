package dispatch

import (
	"sort"
	"sync"
)

// handlerTable stores at most one handler per name. The last registration
// wins.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func (t *handlerTable) set(name string, fn Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fn == nil {
		delete(t.handlers, name)
		return
	}
	if t.handlers == nil {
		t.handlers = make(map[string]Handler)
	}
	t.handlers[name] = fn
}

func (t *handlerTable) setAll(handlers map[string]Handler) {
	for name, fn := range handlers {
		t.set(name, fn)
	}
}

func (t *handlerTable) get(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.handlers[name]
	return fn, ok
}

func (t *handlerTable) remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[name]; !ok {
		return false
	}
	delete(t.handlers, name)
	return true
}

func (t *handlerTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = nil
}

func (t *handlerTable) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
