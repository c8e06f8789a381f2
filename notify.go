package satchel

import "sort"

// Change describes one committed, externally observable store change.
type Change struct {
	// Keys is the sorted set of keys whose presence or value changed.
	Keys []string
	// Origin is the origin tag of the engine instance that committed
	// the write, or empty for changes picked up from the file watcher.
	// A commit merges against the freshest on-disk map, so keys another
	// process changed just before it are reported under the committing
	// instance's tag rather than as a separate foreign change.
	Origin string
}

// Subscription is a handle to a registered change callback.
type Subscription struct {
	e  *Engine
	id int
}

// Cancel unregisters the callback. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.e.subMu.Lock()
	defer s.e.subMu.Unlock()
	delete(s.e.subs, s.id)
}

// Subscribe registers fn to receive change notifications. Callbacks run
// on the engine's dispatch goroutine, never inside the writer's lock,
// in the order the underlying writes were committed.
func (e *Engine) Subscribe(fn func(Change)) *Subscription {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextSub++
	e.subs[e.nextSub] = fn
	return &Subscription{e: e, id: e.nextSub}
}

// publish queues a change for asynchronous dispatch. Called with the
// engine's write section held, so queue order matches commit order.
func (e *Engine) publish(c Change) {
	e.pendMu.Lock()
	e.pending = append(e.pending, c)
	e.pendMu.Unlock()
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// dispatchLoop delivers queued changes to subscribers until the engine
// is torn down. Changes committed before Close are still delivered.
func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	e.dispatchGID.Store(gid())
	for {
		select {
		case <-e.done:
			e.drainPending()
			return
		case <-e.kick:
			e.drainPending()
		}
	}
}

func (e *Engine) drainPending() {
	for {
		e.pendMu.Lock()
		if len(e.pending) == 0 {
			e.pendMu.Unlock()
			return
		}
		c := e.pending[0]
		e.pending = e.pending[1:]
		e.pendMu.Unlock()

		for _, fn := range e.subscribers() {
			fn(c)
		}
	}
}

// subscribers snapshots the registered callbacks in registration order.
func (e *Engine) subscribers() []func(Change) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, e.subs[id])
	}
	return fns
}
