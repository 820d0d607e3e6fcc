// Package trace records propagation events produced by the router.
//
// Events are emitted in call-stack order, so a recorded sequence is the
// total order of observable writes for one host session. Recorders must be
// safe to call from nested evaluations; the provided ones are also safe for
// concurrent use.
package trace

import (
	"fmt"
	"sync"
)

// Kind classifies an event.
type Kind string

const (
	// KindWrite is a value copied across a connection.
	KindWrite Kind = "write"
	// KindInject is a value delivered from outside the instance graph.
	KindInject Kind = "inject"
	// KindEval is an evaluation started by a delivery.
	KindEval Kind = "eval"
	// KindIdle is a delivery to a destination whose vector is zero.
	KindIdle Kind = "idle"
	// KindFault is a fault raised during routing or nested evaluation.
	KindFault Kind = "fault"
	// KindExit is an instance setting its exit state.
	KindExit Kind = "exit"
)

// External is the source id used for injected values.
const External = -1

// Event is one propagation step.
type Event struct {
	Kind    Kind   `json:"kind" cbor:"kind"`
	Detail  string `json:"detail,omitempty" cbor:"detail,omitempty"`
	Seq     uint64 `json:"seq" cbor:"seq"`
	Depth   int    `json:"depth" cbor:"depth"`
	Src     int    `json:"src" cbor:"src"`
	Dst     int    `json:"dst" cbor:"dst"`
	Vector  uint16 `json:"vector,omitempty" cbor:"vector,omitempty"`
	SrcPort uint8  `json:"src_port" cbor:"src_port"`
	DstPort uint8  `json:"dst_port" cbor:"dst_port"`
	Value   uint8  `json:"value" cbor:"value"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindWrite:
		return fmt.Sprintf("#%d d%d write %d:%#02x -> %d:%#02x = %#02x", e.Seq, e.Depth, e.Src, e.SrcPort, e.Dst, e.DstPort, e.Value)
	case KindInject:
		return fmt.Sprintf("#%d d%d inject -> %d:%#02x = %#02x", e.Seq, e.Depth, e.Dst, e.DstPort, e.Value)
	case KindEval:
		return fmt.Sprintf("#%d d%d eval %d @%#04x", e.Seq, e.Depth, e.Dst, e.Vector)
	case KindIdle:
		return fmt.Sprintf("#%d d%d idle %d:%#02x = %#02x", e.Seq, e.Depth, e.Dst, e.DstPort, e.Value)
	default:
		return fmt.Sprintf("#%d d%d %s %d: %s", e.Seq, e.Depth, e.Kind, e.Dst, e.Detail)
	}
}

// Recorder receives events.
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ev Event)

func (f RecorderFunc) Record(ev Event) { f(ev) }

// Nop discards events.
var Nop Recorder = RecorderFunc(func(Event) {})

// Multi fans events out to several recorders in order. Nil entries are skipped.
func Multi(rs ...Recorder) Recorder {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return Nop
	case 1:
		return out[0]
	}
	return out
}

type multi []Recorder

func (m multi) Record(ev Event) {
	for _, r := range m {
		r.Record(ev)
	}
}

// Memory keeps events in memory.
type Memory struct {
	events []Event
	mu     sync.Mutex
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the recorded events of the given kinds.
func (m *Memory) Filter(kinds ...Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Reset drops all recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
