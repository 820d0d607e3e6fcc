package host

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/router"
)

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion = 1

// Snapshot is the observable state of a host.
type Snapshot struct {
	Session     string              `cbor:"session" json:"session"`
	Instances   []InstanceState     `cbor:"instances" json:"instances"`
	Connections []router.Connection `cbor:"connections" json:"connections"`
	Faults      []router.Fault      `cbor:"faults,omitempty" json:"faults,omitempty"`
	Version     int                 `cbor:"version" json:"version"`
	MaxDepth    int                 `cbor:"max_depth" json:"max_depth"`
}

// InstanceState is one instance inside a Snapshot.
type InstanceState struct {
	Name      string `cbor:"name" json:"name"`
	Program   string `cbor:"program" json:"program"`
	Registers []byte `cbor:"registers" json:"registers"`
	Memory    []byte `cbor:"memory" json:"memory"`
	Evals     uint64 `cbor:"evals" json:"evals"`
	ID        int    `cbor:"id" json:"id"`
	ExitCode  int    `cbor:"exit_code" json:"exit_code"`
	Alive     bool   `cbor:"alive" json:"alive"`
	Exited    bool   `cbor:"exited" json:"exited"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Snapshot captures registers, memory, exit state and counters of every
// instance. Memory is truncated after its last nonzero byte.
func (h *Host) Snapshot() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &Snapshot{
		Version:     SnapshotVersion,
		Session:     h.session,
		MaxDepth:    h.maxDepth,
		Connections: h.router.Table().Connections(),
	}
	if len(h.faults) > 0 {
		s.Faults = make([]router.Fault, len(h.faults))
		copy(s.Faults, h.faults)
	}
	for _, inst := range h.instances {
		regs := inst.bank.Registers()
		s.Instances = append(s.Instances, InstanceState{
			ID:        int(inst.id),
			Name:      inst.name,
			Program:   inst.ref,
			Alive:     inst.alive,
			Exited:    inst.Exited(),
			ExitCode:  inst.ExitCode(),
			Evals:     inst.evals,
			Registers: regs[:],
			Memory:    trimZeros(inst.region.Bytes()),
		})
	}
	return s
}

func trimZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}

// Encode writes s in canonical CBOR, so equal snapshots encode to equal
// bytes.
func (s *Snapshot) Encode(w io.Writer) error {
	if err := encMode.NewEncoder(w).Encode(s); err != nil {
		return errors.Wrap(errors.PhaseSnapshot, errors.KindIO, err, "encode snapshot")
	}
	return nil
}

// Bytes returns the canonical encoding of s.
func (s *Snapshot) Bytes() ([]byte, error) {
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindInvalidData, err, "encode snapshot")
	}
	return b, nil
}

// DecodeSnapshot reads a snapshot written by Encode.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := decMode.NewDecoder(r).Decode(&s); err != nil {
		return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindInvalidData, err, "decode snapshot")
	}
	if s.Version != SnapshotVersion {
		return nil, errors.New(errors.PhaseSnapshot, errors.KindUnsupported).
			Value(s.Version).
			Detail("snapshot version %d, want %d", s.Version, SnapshotVersion).
			Build()
	}
	return &s, nil
}

// MemoryPadded returns the instance memory padded back to size bytes.
func (st InstanceState) MemoryPadded(size int) []byte {
	out := make([]byte, size)
	copy(out, st.Memory)
	return out
}
