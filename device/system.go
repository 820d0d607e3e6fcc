package device

import "context"

// System ports.
const (
	SystemDebug uint8 = 0x0e
	SystemState uint8 = 0x0f
)

// System is the control device in slot 0. A nonzero write to the state
// register marks the instance exited; the exit code is value&0x7f.
type System struct {
	// OnDebug is called for nonzero writes to the debug register.
	OnDebug func(ctx context.Context, b *Bank)
	// OnExit is called the first time the state register is set.
	OnExit func(ctx context.Context, code int)
	exited bool
	code   int
}

func (s *System) Name() string { return "system" }

func (s *System) In(_ context.Context, b *Bank, port uint8) uint8 {
	return b.Peek(port)
}

func (s *System) Out(ctx context.Context, b *Bank, port uint8, value uint8) {
	switch port & 0x0f {
	case SystemDebug:
		if value != 0 && s.OnDebug != nil {
			s.OnDebug(ctx, b)
		}
	case SystemState:
		if value == 0 || s.exited {
			return
		}
		s.exited = true
		s.code = int(value & 0x7f)
		if s.OnExit != nil {
			s.OnExit(ctx, s.code)
		}
	}
}

// Exited reports whether the state register has been set.
func (s *System) Exited() bool {
	return s.exited
}

// ExitCode returns the exit code, valid once Exited is true.
func (s *System) ExitCode() int {
	return s.code
}
