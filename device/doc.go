// Package device implements the per-instance register file.
//
// A Bank is 256 bytes split into 16 slots of 16 bytes. Each slot may carry a
// Handler from the bank's capability table; accesses to a slot without a
// handler are plain storage. Slot 0 is the System device and slot 1 the Link
// device that feeds the router.
//
// # Register Map
//
//	0x0e  system debug     nonzero write requests a state dump
//	0x0f  system state     nonzero write exits with code value&0x7f
//	0x10  link vector hi   entry address evaluated on delivery
//	0x11  link vector lo
//	0x12  link data        default input port
//	0x18  link write       default output port
//	0x19  link error       secondary output port
//
// Ports are uint8, so every offset is in range by construction.
package device
