// Package arena provides the shared byte arena that backs instance memory.
//
// The arena is one contiguous allocation split into fixed-size regions, one
// per instance. A Region is the only way to reach arena bytes: every access
// is relative to the region start and checked against its length, and the
// slice returned by Bytes has its capacity capped at the region end.
package arena

import (
	"fmt"

	"github.com/wippyai/vmwire/errors"
)

const (
	// RegionSize is the size of one instance region (64 KiB).
	RegionSize = 0x10000
	// MaxRegions is the number of regions an arena can hold.
	MaxRegions = 0x10
)

// Arena owns the backing buffer and hands out one region per id.
type Arena struct {
	buf     []byte
	regions []*Region
}

// New allocates a zeroed arena with n regions.
func New(n int) (*Arena, error) {
	if n < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("negative region count %d", n))
	}
	if n > MaxRegions {
		return nil, errors.Capacity(errors.PhaseConfig, n, MaxRegions)
	}
	a := &Arena{
		buf:     make([]byte, n*RegionSize),
		regions: make([]*Region, n),
	}
	for id := range a.regions {
		lo, hi := id*RegionSize, (id+1)*RegionSize
		a.regions[id] = &Region{id: id, data: a.buf[lo:hi:hi]}
	}
	return a, nil
}

// Len returns the number of regions.
func (a *Arena) Len() int {
	return len(a.regions)
}

// Region returns the region for id. Bounds are [id*RegionSize, (id+1)*RegionSize).
func (a *Arena) Region(id int) (*Region, error) {
	if id < 0 || id >= len(a.regions) {
		return nil, errors.New(errors.PhaseConfig, errors.KindOutOfBounds).
			Instance(id).
			Detail("region %d outside arena of %d", id, len(a.regions)).
			Value(id).
			Build()
	}
	return a.regions[id], nil
}

// Region is an exclusive, bounds-checked view of one instance's memory.
type Region struct {
	data []byte
	id   int
}

// ID returns the id of the instance the region belongs to.
func (r *Region) ID() int {
	return r.id
}

// Size returns the region length in bytes.
func (r *Region) Size() uint32 {
	return uint32(len(r.data))
}

// Bytes returns the region's bytes. The slice cannot be extended past the
// region end.
func (r *Region) Bytes() []byte {
	return r.data
}

func (r *Region) check(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(r.data)) {
		return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
			Instance(r.id).
			Detail("access [%#x, %#x) outside region of %#x bytes", offset, end, len(r.data)).
			Value(offset).
			Build()
	}
	return nil
}

// Read returns a copy of length bytes starting at offset.
func (r *Region) Read(offset uint32, length uint32) ([]byte, error) {
	if err := r.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, r.data[offset:])
	return out, nil
}

// Write copies data into the region at offset.
func (r *Region) Write(offset uint32, data []byte) error {
	if err := r.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(r.data[offset:], data)
	return nil
}

// ReadU8 reads one byte.
func (r *Region) ReadU8(offset uint32) (uint8, error) {
	if err := r.check(offset, 1); err != nil {
		return 0, err
	}
	return r.data[offset], nil
}

// WriteU8 writes one byte.
func (r *Region) WriteU8(offset uint32, value uint8) error {
	if err := r.check(offset, 1); err != nil {
		return err
	}
	r.data[offset] = value
	return nil
}
