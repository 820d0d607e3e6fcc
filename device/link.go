package device

import (
	"context"

	"github.com/wippyai/vmwire"
)

// Link ports.
const (
	LinkVectorHi uint8 = 0x10
	LinkVectorLo uint8 = 0x11
	LinkData     uint8 = 0x12
	LinkWrite    uint8 = 0x18
	LinkError    uint8 = 0x19

	// LinkFirstOut and LinkLastOut bound the ports a link offers to the router.
	LinkFirstOut uint8 = 0x12
	LinkLastOut  uint8 = 0x1f
)

// Routable reports whether a write to port leaves the instance through its
// link device.
func Routable(port uint8) bool {
	return port >= LinkFirstOut && port <= LinkLastOut
}

// Router receives writes leaving an instance through its link device.
type Router interface {
	Route(ctx context.Context, src vmwire.ID, port uint8, value uint8) error
}

// Link is the wiring device in slot 1. Writes to the vector registers are
// stored only; every other write is offered to the router.
type Link struct {
	router  Router
	onError func(ctx context.Context, err error)
	id      vmwire.ID
}

// NewLink creates a link device for instance id. onError may be nil.
func NewLink(id vmwire.ID, r Router, onError func(ctx context.Context, err error)) *Link {
	return &Link{id: id, router: r, onError: onError}
}

func (l *Link) Name() string { return "link" }

func (l *Link) In(_ context.Context, b *Bank, port uint8) uint8 {
	return b.Peek(port)
}

func (l *Link) Out(ctx context.Context, _ *Bank, port uint8, value uint8) {
	if !Routable(port) || l.router == nil {
		return
	}
	if err := l.router.Route(ctx, l.id, port, value); err != nil && l.onError != nil {
		l.onError(ctx, err)
	}
}

// Vector returns the entry address held in the link vector registers.
func Vector(b *Bank) uint16 {
	return b.Peek16(LinkVectorHi)
}
