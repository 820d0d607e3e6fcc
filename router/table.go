package router

import (
	"fmt"
	"strconv"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
)

// PortCount is the number of source ports per instance.
const PortCount = 0x100

// Connection is a directed edge from a source register to a destination
// register.
type Connection struct {
	Src     vmwire.ID `json:"src" cbor:"src"`
	Dst     vmwire.ID `json:"dst" cbor:"dst"`
	SrcPort uint8     `json:"src_port" cbor:"src_port"`
	DstPort uint8     `json:"dst_port" cbor:"dst_port"`
}

func (c Connection) String() string {
	return fmt.Sprintf("%d:%#02x -> %d:%#02x", c.Src, c.SrcPort, c.Dst, c.DstPort)
}

// Table is the immutable connection set for n instances.
type Table struct {
	// index[src][port] is 1 + position in conns, 0 when unwired
	index [][PortCount]uint16
	conns []Connection
}

// NewTable validates conns against n instances and builds the lookup index.
// Every endpoint must name an instance in [0, n), every source port must be
// one the link device routes, and each (source, port) pair may appear at most
// once.
func NewTable(n int, conns []Connection) (*Table, error) {
	if n < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "negative instance count")
	}
	t := &Table{
		index: make([][PortCount]uint16, n),
		conns: make([]Connection, 0, len(conns)),
	}
	for i, c := range conns {
		path := []string{"edges", strconv.Itoa(i)}
		if int(c.Src) < 0 || int(c.Src) >= n {
			return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
				Path(append(path, "from")...).
				Value(int(c.Src)).
				Detail("source instance %d does not exist (have %d)", c.Src, n).
				Build()
		}
		if int(c.Dst) < 0 || int(c.Dst) >= n {
			return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
				Path(append(path, "to")...).
				Value(int(c.Dst)).
				Detail("destination instance %d does not exist (have %d)", c.Dst, n).
				Build()
		}
		if !device.Routable(c.SrcPort) {
			return nil, errors.New(errors.PhaseConfig, errors.KindOutOfBounds).
				Path(append(path, "from_port")...).
				Instance(int(c.Src)).
				Value(c.SrcPort).
				Detail("source port %#02x is never routed (want %#02x..%#02x)",
					c.SrcPort, device.LinkFirstOut, device.LinkLastOut).
				Build()
		}
		if prev := t.index[c.Src][c.SrcPort]; prev != 0 {
			return nil, errors.New(errors.PhaseConfig, errors.KindDuplicate).
				Path(path...).
				Instance(int(c.Src)).
				Value(c.SrcPort).
				Detail("port %#02x already wired by edge %d", c.SrcPort, prev-1).
				Build()
		}
		t.conns = append(t.conns, c)
		t.index[c.Src][c.SrcPort] = uint16(len(t.conns))
	}
	return t, nil
}

// N returns the number of instances the table was built for.
func (t *Table) N() int {
	return len(t.index)
}

// Len returns the number of connections.
func (t *Table) Len() int {
	return len(t.conns)
}

// Lookup returns the connection leaving src on port.
func (t *Table) Lookup(src vmwire.ID, port uint8) (Connection, bool) {
	if int(src) < 0 || int(src) >= len(t.index) {
		return Connection{}, false
	}
	i := t.index[src][port]
	if i == 0 {
		return Connection{}, false
	}
	return t.conns[i-1], true
}

// Connections returns every connection in declaration order.
func (t *Table) Connections() []Connection {
	out := make([]Connection, len(t.conns))
	copy(out, t.conns)
	return out
}

// Outgoing returns the connections leaving src ordered by source port.
func (t *Table) Outgoing(src vmwire.ID) []Connection {
	if int(src) < 0 || int(src) >= len(t.index) {
		return nil
	}
	var out []Connection
	for _, i := range t.index[src] {
		if i != 0 {
			out = append(out, t.conns[i-1])
		}
	}
	return out
}

// Incoming returns the connections arriving at dst in declaration order.
func (t *Table) Incoming(dst vmwire.ID) []Connection {
	var out []Connection
	for _, c := range t.conns {
		if c.Dst == dst {
			out = append(out, c)
		}
	}
	return out
}
