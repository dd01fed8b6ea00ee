// Package listener runs a single-connection-at-a-time accept loop that can be
// stopped from another goroutine.
//
// Stop sets an atomic flag and closes the socket; the Accept blocked in the
// loop goroutine fails with net.ErrClosed, which the loop treats as the
// signal to exit rather than as a fault.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/layoutd/internal/logx"
	"github.com/gaspardpetit/layoutd/internal/metrics"
)

// State is a listener lifecycle stage.
type State int

const (
	Created State = iota
	Bound
	Running
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Bound:
		return "bound"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
	// forceGrace is how long Stop keeps waiting after it has closed a
	// connection that outlived the stop timeout.
	forceGrace = time.Second
)

var (
	// ErrNotBound is returned by Serve on a listener that is not in the Bound state.
	ErrNotBound = errors.New("listener not bound")
	// ErrStopTimeout is returned by Stop when the accept loop did not exit.
	ErrStopTimeout = errors.New("accept loop did not exit")
)

// ConnHandler serves one accepted connection. The listener closes the
// connection once ServeConn returns.
type ConnHandler interface {
	ServeConn(conn net.Conn) error
}

// Listener owns a bound TCP socket and the goroutine accepting on it.
type Listener struct {
	ln  net.Listener
	log logx.Logger

	stopped atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	state   State
	serving bool
	active  net.Conn
}

// Bind listens on addr (host:port; empty host means all interfaces) with
// SO_REUSEADDR enabled.
func Bind(ctx context.Context, addr string, log logx.Logger) (*Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return wrap(ln, log), nil
}

func wrap(ln net.Listener, log logx.Logger) *Listener {
	if log == nil {
		log = logx.Nop()
	}
	l := &Listener{
		ln:     ln,
		log:    log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		state:  Bound,
	}
	return l
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the bound TCP port.
func (l *Listener) Port() int {
	if a, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// State returns the current lifecycle stage.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Serve starts the accept loop on its own goroutine and returns immediately.
func (l *Listener) Serve(h ConnHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Bound {
		return fmt.Errorf("%w: %s", ErrNotBound, l.state)
	}
	l.state = Running
	l.serving = true
	go l.loop(h)
	return nil
}

func (l *Listener) loop(h ConnHandler) {
	defer close(l.done)
	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.stopped.Load() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				l.log.Debugf("listener %s closed underneath the accept loop", l.ln.Addr())
				return
			}
			metrics.AcceptError()
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			l.log.Errorf("accept on %s: %v; retrying in %s", l.ln.Addr(), err, delay)
			select {
			case <-time.After(delay):
			case <-l.stopCh:
				return
			}
			continue
		}
		delay = 0
		if l.stopped.Load() {
			_ = conn.Close()
			return
		}
		l.handle(h, conn)
	}
}

func (l *Listener) handle(h ConnHandler, conn net.Conn) {
	l.mu.Lock()
	l.active = conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.active = nil
		l.mu.Unlock()
		_ = conn.Close()
	}()
	if err := h.ServeConn(conn); err != nil {
		l.log.Errorf("%v", err)
	}
}

// Stop signals the loop, closes the socket and waits up to timeout for the
// loop to exit. A connection still in flight after timeout is closed and the
// wait continues briefly. Stop is idempotent and safe to call before Serve.
func (l *Listener) Stop(timeout time.Duration) error {
	l.mu.Lock()
	switch l.state {
	case Closed:
		l.mu.Unlock()
		return nil
	case Stopping:
		serving := l.serving
		l.mu.Unlock()
		if !serving {
			return nil
		}
		if err := l.join(timeout); err != nil {
			return err
		}
		l.setState(Closed)
		return nil
	}
	running := l.state == Running
	l.state = Stopping
	l.stopped.Store(true)
	close(l.stopCh)
	l.mu.Unlock()

	var closeErr error
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		closeErr = fmt.Errorf("close listener: %w", err)
	}
	if running {
		if err := l.join(timeout); err != nil {
			return errors.Join(err, closeErr)
		}
	}
	l.setState(Closed)
	return closeErr
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Listener) join(timeout time.Duration) error {
	if waitFor(l.done, timeout) {
		return nil
	}
	l.mu.Lock()
	if l.active != nil {
		l.log.Infof("closing in-flight connection from %s", l.active.RemoteAddr())
		_ = l.active.Close()
	}
	l.mu.Unlock()
	if waitFor(l.done, forceGrace) {
		return nil
	}
	return ErrStopTimeout
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
