package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	three := 3
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseConfig,
				Kind:     KindNotFound,
				Path:     []string{"edges", "2", "to"},
				Instance: &three,
				Detail:   "no such instance",
			},
			contains: []string{"[config]", "not_found", "edges.2.to", "(instance 3)", "no such instance"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRoute,
				Kind:  KindRecursion,
			},
			contains: []string{"[route]", "recursion"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEval,
				Kind:   KindFault,
				Detail: "trap",
				Cause:  errors.New("unreachable executed"),
			},
			contains: []string{"[eval]", "fault", "trap", "caused by", "unreachable executed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through the chain")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseConfig,
		Kind:  KindDuplicate,
		Path:  []string{"edges"},
	}

	if !err.Is(&Error{Phase: PhaseConfig, Kind: KindDuplicate}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseRoute, Kind: KindDuplicate}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseConfig, Kind: KindNotFound}) {
		t.Error("Is should not match different kind")
	}

	var target *Error
	if !errors.As(error(err), &target) || target.Kind != KindDuplicate {
		t.Error("errors.As should extract *Error")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConfig, KindNotFound).
		Path("edges", "0", "from").
		Instance(9).
		Value("nine").
		Cause(cause).
		Detail("unknown instance %q", "nine").
		Build()

	if err.Phase != PhaseConfig {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConfig)
	}
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if len(err.Path) != 3 || err.Path[2] != "from" {
		t.Errorf("Path = %v, want [edges 0 from]", err.Path)
	}
	if err.Instance == nil || *err.Instance != 9 {
		t.Errorf("Instance = %v, want 9", err.Instance)
	}
	if err.Value != "nine" {
		t.Errorf("Value = %v, want nine", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != `unknown instance "nine"` {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Capacity", func(t *testing.T) {
		err := Capacity(PhaseConfig, 17, 16)
		if err.Kind != KindCapacity {
			t.Errorf("Kind = %v, want %v", err.Kind, KindCapacity)
		}
		if !strings.Contains(err.Detail, "17") || !strings.Contains(err.Detail, "16") {
			t.Errorf("Detail = %v, should mention count and limit", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseRuntime, []string{"region"}, 70000, 65536)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 70000 {
			t.Errorf("Value = %v, want 70000", err.Value)
		}
	})

	t.Run("Recursion", func(t *testing.T) {
		err := Recursion(2, 65, 64)
		if err.Phase != PhaseRoute || err.Kind != KindRecursion {
			t.Errorf("got %s/%s", err.Phase, err.Kind)
		}
		if err.Instance == nil || *err.Instance != 2 {
			t.Errorf("Instance = %v, want 2", err.Instance)
		}
	})

	t.Run("Fault", func(t *testing.T) {
		cause := errors.New("wasm error: unreachable")
		err := Fault(1, 0x0200, cause)
		if err.Kind != KindFault {
			t.Errorf("Kind = %v, want %v", err.Kind, KindFault)
		}
		if !strings.Contains(err.Error(), "0x0200") {
			t.Errorf("message %q should contain the vector", err.Error())
		}
		if !errors.Is(err, cause) {
			t.Error("Fault should wrap its cause")
		}
	})

	t.Run("Load", func(t *testing.T) {
		err := Load(0, "builtin:relay", errors.New("boom"))
		if err.Phase != PhaseLoad {
			t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
		}
		if !strings.Contains(err.Error(), "builtin:relay") {
			t.Errorf("message %q should name the image", err.Error())
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseConfig, "instance", "ghost")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
	})
}
