package adapter

import "sync"

// Emitter is a registry of event handlers. Adapters embed it to implement
// Subscribe and to fan events out in emission order.
type Emitter struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
}

func (e *Emitter) Subscribe(h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

// Emit delivers ev to every subscriber synchronously, oldest first.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers))
	for i := 0; i < e.nextID; i++ {
		if h, ok := e.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
