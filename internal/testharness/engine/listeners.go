package engine

import (
	"sync"

	"github.com/atcase/atcase-go/pkg/transport"
)

// permanentListener is a URC matcher that stays armed for the rest of the
// run until it fires once.
type permanentListener struct {
	st        *step
	matcher   *Matcher
	extractor *Extractor
}

// waiter is the synchronous wait of the current step. evaluate returns
// done=true when the line completes the wait, with err set if the line
// is a failure.
type waiter struct {
	evaluate func(line string) (done bool, err error)
	result   chan waitResult
}

type waitResult struct {
	line transport.Line
	err  error
}

func newWaiter(evaluate func(string) (bool, error)) *waiter {
	return &waiter{evaluate: evaluate, result: make(chan waitResult, 1)}
}

// lineRouter is the single consumer of a run's line subscription. Every
// line is offered to the live permanent listeners in registration order
// and then to the armed waiter, in receipt order.
type lineRouter struct {
	lines       <-chan transport.Line
	unsubscribe func()
	onFire      func(l *permanentListener, line transport.Line)

	mu        sync.Mutex
	permanent []*permanentListener
	waiter    *waiter
	closed    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newLineRouter(lines <-chan transport.Line, unsubscribe func(), onFire func(*permanentListener, transport.Line)) *lineRouter {
	return &lineRouter{
		lines:       lines,
		unsubscribe: unsubscribe,
		onFire:      onFire,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *lineRouter) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stopCh:
			return
		case line, ok := <-r.lines:
			if !ok {
				r.linkDown()
				return
			}
			r.dispatch(line)
		}
	}
}

func (r *lineRouter) dispatch(line transport.Line) {
	r.mu.Lock()
	var fired []*permanentListener
	kept := r.permanent[:0]
	for _, l := range r.permanent {
		if l.matcher.Match(line.Text) {
			fired = append(fired, l)
		} else {
			kept = append(kept, l)
		}
	}
	for i := len(kept); i < len(r.permanent); i++ {
		r.permanent[i] = nil
	}
	r.permanent = kept
	w := r.waiter
	r.mu.Unlock()

	for _, l := range fired {
		r.onFire(l, line)
	}

	if w == nil {
		return
	}
	done, err := w.evaluate(line.Text)
	if !done {
		return
	}
	r.mu.Lock()
	if r.waiter == w {
		r.waiter = nil
	}
	r.mu.Unlock()
	w.result <- waitResult{line: line, err: err}
}

func (r *lineRouter) linkDown() {
	r.mu.Lock()
	r.closed = true
	w := r.waiter
	r.waiter = nil
	r.mu.Unlock()
	if w != nil {
		w.result <- waitResult{err: TransportError(transport.ErrConnectionClosed)}
	}
}

// addPermanent registers a permanent listener.
func (r *lineRouter) addPermanent(l *permanentListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permanent = append(r.permanent, l)
}

// arm makes w the current waiter. It must be called before the command
// that provokes the awaited line is sent.
func (r *lineRouter) arm(w *waiter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return TransportError(transport.ErrConnectionClosed)
	}
	r.waiter = w
	return nil
}

// disarm removes w if it is still the current waiter.
func (r *lineRouter) disarm(w *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiter == w {
		r.waiter = nil
	}
}

// armedCount returns the number of live permanent listeners.
func (r *lineRouter) armedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.permanent)
}

// stop ends the subscription and waits for the router goroutine.
func (r *lineRouter) stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.unsubscribe()
	})
	<-r.done
}
