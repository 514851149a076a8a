package docstore

import "sync"

// hub fans change events out to per-collection subscribers. Each subscriber
// channel is buffered with capacity 1; publishing to a full channel replaces
// the pending event instead of blocking.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan Event)}
}

func (h *hub) subscribe(collection string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan Event, 1)
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[int]chan Event)
	}
	h.subs[collection][id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[collection]; ok {
				if c, ok := subs[id]; ok {
					delete(subs, id)
					close(c)
				}
			}
		},
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[ev.Collection] {
		select {
		case ch <- ev:
		default:
			// Drop the stale pending event and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
