package events

import "sync"

// Multi fans every emitted event out to all supplied emitters. Nil entries are
// skipped.
func Multi(emitters ...Emitter) Emitter {
	filtered := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return multiEmitter(filtered)
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(evt Event) {
	for _, e := range m {
		e.Emit(evt)
	}
}

// Broadcaster distributes events to dynamically registered subscriber channels.
// Slow subscribers are skipped rather than blocking the emitting operation.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a buffered subscriber channel and returns it with an
// unsubscribe function. The unsubscribe function closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
