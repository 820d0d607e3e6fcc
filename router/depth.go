package router

import (
	"context"

	"github.com/wippyai/vmwire"
)

// NoInstance marks a frame that is not running any instance, such as a host
// write made on an instance's behalf.
const NoInstance vmwire.ID = -1

type frameKey struct{}

type frame struct {
	chain  *chain
	parent *frame
	id     vmwire.ID
	depth  int
}

// chain is shared by every frame of one top-level call.
type chain struct {
	// cut is the depth of the frame whose subtree hit the guard, 0 when none.
	// Frames at or below it copy values but evaluate nothing.
	cut int
}

// WithDepth returns a context recording that depth evaluations are on the
// stack. A context without a chain starts a new one.
func WithDepth(ctx context.Context, depth int) context.Context {
	return WithFrame(ctx, NoInstance, depth)
}

// WithFrame is WithDepth for a frame evaluating instance id.
func WithFrame(ctx context.Context, id vmwire.ID, depth int) context.Context {
	f := &frame{id: id, depth: depth}
	if parent := frameOf(ctx); parent != nil {
		f.parent = parent
		f.chain = parent.chain
	} else {
		f.chain = &chain{}
	}
	return context.WithValue(ctx, frameKey{}, f)
}

func frameOf(ctx context.Context) *frame {
	f, _ := ctx.Value(frameKey{}).(*frame)
	return f
}

// Depth returns the number of evaluations on the stack, 0 outside any.
func Depth(ctx context.Context) int {
	if f := frameOf(ctx); f != nil {
		return f.depth
	}
	return 0
}

// Tripped reports whether ctx runs inside a subtree cut off by the depth
// guard.
func Tripped(ctx context.Context) bool {
	f := frameOf(ctx)
	return f != nil && f.chain.cut != 0 && f.depth >= f.chain.cut
}

// trip cuts the subtree that led to an over-limit evaluation of id from ctx.
// It reports false when ctx is already inside a cut subtree.
func trip(ctx context.Context, id vmwire.ID) (first bool) {
	f := frameOf(ctx)
	if f == nil {
		return true
	}
	if Tripped(ctx) {
		return false
	}
	f.chain.cut = cycleStart(f, id)
	return true
}

// release lifts the cut once the frame at depth has returned.
func release(ctx context.Context, depth int) {
	if f := frameOf(ctx); f != nil && f.chain.cut == depth {
		f.chain.cut = 0
	}
}

// cycleStart returns the depth of the shallowest frame whose instance runs
// again deeper in the stack, counting id as the next frame. Without a repeat
// the whole stack is cut from its shallowest evaluating frame.
func cycleStart(f *frame, id vmwire.ID) int {
	var stack []*frame
	for p := f; p != nil && p.depth > 0; p = p.parent {
		stack = append(stack, p)
	}
	if len(stack) == 0 {
		return 1
	}
	seen := map[vmwire.ID]bool{id: true}
	start := stack[len(stack)-1].depth
	// stack runs leaf to root, so the last repeat found is the shallowest
	for _, p := range stack {
		if p.id != NoInstance && seen[p.id] {
			start = p.depth
		}
		seen[p.id] = true
	}
	return start
}
