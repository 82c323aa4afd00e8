package session

import "sync"

// Observable is a value cell with one writer and any number of subscribers.
// Subscribers see the latest value; intermediate values may be skipped.
type Observable[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   map[int]chan T
	nextID int
}

// NewObservable creates a cell holding initial
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial, subs: make(map[int]chan T)}
}

// Get returns the current value
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Subscribe returns a channel that immediately receives the current value and then every change.
// The returned func stops the subscription and closes the channel.
func (o *Observable[T]) Subscribe() (<-chan T, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan T, 1)
	ch <- o.value

	id := o.nextID
	o.nextID++
	o.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// set is reserved for the owning Manager
func (o *Observable[T]) set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.value = v
	for _, ch := range o.subs {
		select {
		case ch <- v:
		default:
			// replace the unread value with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}
