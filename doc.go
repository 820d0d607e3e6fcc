// Package vmwire hosts several byte-code virtual machine instances in one
// process and wires them together with static point-to-point connections.
//
// Each instance owns a 64 KiB region of a shared arena and a 256-byte
// register file split into 16 device slots. Slot 1 is the link device: a
// write to one of its output ports is copied across the matching connection
// into the destination's register file and, when the destination's link
// vector is nonzero, the destination is evaluated synchronously before the
// writer resumes.
//
// # Architecture Overview
//
//	vmwire/            Root package with ID, Halt, Memory, Bus, Program, Loader
//	├── arena/         Shared byte arena and bounds-checked regions
//	├── device/        Register banks, device slot handlers (system, link)
//	├── router/        Connection table and the propagation router
//	├── trace/         Propagation events and recorders
//	├── host/          Instances and the composition root
//	├── engine/        wazero-backed evaluator for wasm program images
//	├── config/        Wiring descriptor loading and validation
//	├── programs/      Built-in guest programs
//	└── errors/        Structured error types
//
// # Quick Start
//
//	w, err := config.Load("wiring.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(ctx, config.NewResolver(w.Dir))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	h, err := host.New(ctx, w, eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close(ctx)
//
//	h.Send(ctx, 0, device.LinkData, 'a')
//
// # Execution Model
//
// Evaluation is single threaded and strictly nested. A propagated write that
// triggers another instance runs that instance to completion before control
// returns to the writer. The nesting depth travels in the context and is
// bounded by the router; exceeding the bound is reported as a fault rather
// than overflowing the stack.
//
// Host is safe for concurrent use: top-level calls are serialized.
// Instance, Bank and Router are not.
package vmwire
