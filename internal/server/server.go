// Package server ties the layout listener and its discovery advertisement
// into one unit that starts and stops together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/layoutd/internal/advertise"
	"github.com/gaspardpetit/layoutd/internal/handler"
	"github.com/gaspardpetit/layoutd/internal/listener"
	"github.com/gaspardpetit/layoutd/internal/logx"
	"github.com/gaspardpetit/layoutd/internal/metrics"
	"github.com/gaspardpetit/layoutd/internal/payload"
)

// Options configures a Controller.
type Options struct {
	// Name is the service name shown to browsing clients.
	Name string
	// Host is the bind address; empty binds all interfaces.
	Host string
	// Port is the TCP port; 0 picks a free one.
	Port       int
	Advertiser advertise.Advertiser

	MediaType string
	Extension string

	ConnTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Controller serves one payload and keeps it advertised while running.
type Controller struct {
	opts  Options
	store *payload.Store
	log   logx.Logger

	mu     sync.Mutex
	ln     *listener.Listener
	handle advertise.Handle
	listed bool

	running atomic.Bool
	addr    atomic.Pointer[net.TCPAddr]
}

// New snapshots src and returns a stopped controller.
func New(src payload.Source, opts Options, log logx.Logger) (*Controller, error) {
	if opts.Name == "" {
		return nil, errors.New("service name is required")
	}
	if opts.Advertiser == nil {
		return nil, errors.New("advertiser is required")
	}
	if log == nil {
		log = logx.Nop()
	}
	store, err := payload.FromSource(src)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded layout %q (%d bytes)", store.Name(), store.Len())
	return &Controller{opts: opts, store: store, log: log}, nil
}

// Payload returns the snapshot being served.
func (c *Controller) Payload() *payload.Store { return c.store }

// Running reports whether Start has succeeded and Stop has not yet run.
func (c *Controller) Running() bool { return c.running.Load() }

// Addr returns the bound address while running, nil otherwise.
func (c *Controller) Addr() net.Addr {
	if a := c.addr.Load(); a != nil {
		return a
	}
	return nil
}

// Start binds the listener, starts serving, and then advertises. On failure
// nothing is left bound or registered.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	ln, err := listener.Bind(ctx, addr, c.log)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	h := handler.New(c.store, handler.Options{
		MediaType: c.opts.MediaType,
		Extension: c.opts.Extension,
		Timeout:   c.opts.ConnTimeout,
	}, c.log)
	if err := ln.Serve(h); err != nil {
		c.stopListener(ln)
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	c.log.Infof("serving %s on %s", c.store.Filename(c.opts.Extension), ln.Addr())

	handle, err := c.opts.Advertiser.Advertise(c.opts.Name, ln.Port())
	if err != nil {
		c.stopListener(ln)
		return &AdvertiseError{Name: c.opts.Name, Port: ln.Port(), Err: err}
	}

	c.ln, c.handle, c.listed = ln, handle, true
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		c.addr.Store(tcp)
	}
	c.running.Store(true)
	metrics.SetAdvertised(true)
	return nil
}

// Stop withdraws the advertisement, then stops the listener and waits for it.
// It never fails; faults are logged. Safe to call at any time, any number of
// times.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running.Store(false)
	c.addr.Store(nil)
	if c.listed {
		h := c.handle
		c.handle, c.listed = nil, false
		metrics.SetAdvertised(false)
		c.shutdownStep("withdraw advertisement", func() error { return c.opts.Advertiser.Withdraw(h) })
	}
	if c.ln != nil {
		ln := c.ln
		c.ln = nil
		c.stopListener(ln)
		c.log.Infof("layout server stopped")
	}
}

func (c *Controller) stopListener(ln *listener.Listener) {
	c.shutdownStep("stop listener", func() error { return ln.Stop(c.opts.ShutdownTimeout) })
}

// shutdownStep runs fn and logs, rather than returns, whatever goes wrong.
func (c *Controller) shutdownStep(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("%v", &ShutdownError{Op: op, Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	if err := fn(); err != nil {
		c.log.Errorf("%v", &ShutdownError{Op: op, Err: err})
	}
}
