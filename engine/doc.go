// Package engine evaluates instance programs with wazero.
//
// A program image is a core WebAssembly module. Its contract with the host:
//
//	import "device" "deo" (func (param i32 i32))          register write
//	import "device" "dei" (func (param i32) (result i32)) register read
//	export "eval" (func (param i32))                       run from vector
//	memory, optional, at most one 64 KiB page
//
// The module's linear memory is backed by the instance's arena region, so
// the region is the guest's RAM and a guest cannot address anything outside
// it. Register access goes through the instance's vmwire.Bus, which is how
// writes reach the router.
//
// # Architecture
//
//	Engine   - one wazero runtime, the "device" host module, compiled cache
//	program  - one instantiated module bound to an instance
//
// # Re-entry
//
// A routed write may evaluate another instance, which may write back into
// the first one while its eval is still on the stack. Each nesting level
// uses its own exported function handle, so nested calls never share call
// state.
//
// # Thread Safety
//
// Engine is safe for concurrent use. A program must only be evaluated by
// one goroutine at a time.
package engine
