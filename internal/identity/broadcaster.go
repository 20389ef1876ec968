package identity

import "sync"

// Broadcaster holds the current user and fans every change out to
// subscribers. Each subscriber has its own FIFO and goroutine so a slow or
// re-entrant callback never blocks the writer or reorders deliveries.
type Broadcaster struct {
	mu      sync.Mutex
	current *User
	subs    map[int]*subscriber
	nextID  int
	closed  bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Current returns a copy of the latest user, or nil.
func (b *Broadcaster) Current() *User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone()
}

// Set replaces the current user and announces it.
func (b *Broadcaster) Set(u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.current = u.Clone()
	for _, s := range b.subs {
		s.push(u.Clone())
	}
}

// Subscribe registers fn. The current state is queued first.
func (b *Broadcaster) Subscribe(fn func(*User)) func() {
	s := newSubscriber(fn)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	s.push(b.current.Clone())
	b.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.close()
		})
	}
}

// Close stops every subscriber. Later Sets are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.closed = true
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

type subscriber struct {
	fn     func(*User)
	mu     sync.Mutex
	queue  []*User
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSubscriber(fn func(*User)) *subscriber {
	return &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *subscriber) push(u *User) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			u := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.fn(u)
		}
	}
}
