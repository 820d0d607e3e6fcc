// Package router implements the cross-instance causality rule.
//
// A Table holds the static connections, indexed by source instance and
// source port. A Router intercepts writes on source ports, copies the value
// into the destination register, and when the destination's vector is
// nonzero evaluates the destination at that vector before returning to the
// writer.
//
// # Propagation
//
//	Route(src, port, value)
//	  └── Lookup(src, port)        miss: no-op
//	        └── Deliver(dst, dstPort, value)
//	              ├── Poke          value is visible before any evaluation
//	              ├── Vector() == 0 → Idle (sink policy)
//	              └── Vector() != 0 → Eval at depth+1
//
// Evaluation is a direct nested call. The current depth travels in the
// context; exceeding the limit reports a recursion fault and skips the
// evaluation instead of growing the native stack. Once a chain trips the
// guard, the rest of that chain still copies values but evaluates nothing.
//
// Faults from nested evaluations are reported through the fault handler and
// do not propagate to the writer: the writer's evaluation continues as if
// the destination had halted.
//
// Two writes landing on the same destination register within one chain
// resolve as last write wins, in call order.
package router
