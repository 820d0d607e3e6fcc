package host

import (
	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/router"
)

// InstanceSpec places one program. Instances receive ids in declaration
// order.
type InstanceSpec struct {
	// Name is optional; it defaults to the decimal id.
	Name string
	// Program is handed to the Loader unchanged.
	Program string
	// Sink names a sink registered with WithSink, or one of the built-in
	// "stdout", "stderr", "log". Empty means none.
	Sink string
}

// Wiring is a resolved descriptor: instances, edges by id, and the
// instances evaluated at the reset vector once the router is armed.
type Wiring struct {
	Instances []InstanceSpec
	Edges     []router.Connection
	Start     []vmwire.ID
	// MaxDepth overrides the router's nesting limit when positive.
	MaxDepth int
}
