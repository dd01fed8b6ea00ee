// Package advertise registers the layout service for DNS-SD discovery.
package advertise

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/gaspardpetit/layoutd/internal/logx"
)

// Handle is an opaque registration token; pass it back to Withdraw.
type Handle any

// Advertiser announces and withdraws a named service on the local network.
type Advertiser interface {
	Advertise(name string, port int) (Handle, error)
	Withdraw(h Handle) error
}

// ErrForeignHandle is returned by Withdraw for a handle it did not issue.
var ErrForeignHandle = errors.New("handle not issued by this advertiser")

// Zeroconf advertises over multicast DNS.
type Zeroconf struct {
	ServiceType string
	Domain      string
	// Text holds extra key=value TXT records.
	Text []string
	// Interfaces restricts announcements; nil means all multicast interfaces.
	Interfaces []net.Interface
	Log        logx.Logger
}

type registration struct {
	id     string
	server *zeroconf.Server
	once   sync.Once
}

// Advertise registers name on port.
func (z *Zeroconf) Advertise(name string, port int) (Handle, error) {
	id := uuid.NewString()
	srv, err := zeroconf.Register(name, z.ServiceType, z.Domain, port, z.records(id), z.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("register %q as %s: %w", name, z.ServiceType, err)
	}
	z.logger().Infof("advertising %q as %s.%s on port %d (id %s)", name, z.ServiceType, z.Domain, port, id)
	return &registration{id: id, server: srv}, nil
}

// Withdraw unregisters h. Withdrawing the same handle twice is a no-op, as
// is a nil handle.
func (z *Zeroconf) Withdraw(h Handle) error {
	if h == nil {
		return nil
	}
	r, ok := h.(*registration)
	if !ok {
		return fmt.Errorf("%w: %T", ErrForeignHandle, h)
	}
	r.once.Do(func() {
		r.server.Shutdown()
		z.logger().Infof("withdrew advertisement %s", r.id)
	})
	return nil
}

func (z *Zeroconf) records(id string) []string {
	txt := make([]string, 0, len(z.Text)+2)
	txt = append(txt, "txtvers=1", "id="+id)
	return append(txt, z.Text...)
}

func (z *Zeroconf) logger() logx.Logger {
	if z.Log == nil {
		return logx.Nop()
	}
	return z.Log
}

// None is an Advertiser that registers nothing, for hosts where discovery is
// switched off.
type None struct{}

func (None) Advertise(string, int) (Handle, error) { return nil, nil }

func (None) Withdraw(Handle) error { return nil }
