package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/host"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var memory bool

	cmd := &cobra.Command{
		Use:          "inspect <dump>",
		Short:        "Show a snapshot written by run --dump",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			return writeSnapshot(cmd.OutOrStdout(), snap, memory)
		},
	}

	cmd.Flags().BoolVar(&memory, "memory", false, "hex dump each instance's memory")

	return cmd
}

func readSnapshot(path string) (*host.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindIO, err, "open dump")
	}
	defer f.Close()
	return host.DecodeSnapshot(f)
}

func writeSnapshot(w io.Writer, snap *host.Snapshot, memory bool) error {
	ew := &errWriter{w: w}
	ew.printf("session %s\n", snap.Session)
	ew.printf("version %d, max depth %d, %d instance(s), %d connection(s)\n",
		snap.Version, snap.MaxDepth, len(snap.Instances), len(snap.Connections))

	names := make(map[int]string, len(snap.Instances))
	for _, st := range snap.Instances {
		names[st.ID] = st.Name
	}

	for _, st := range snap.Instances {
		state := "running"
		switch {
		case st.Exited:
			state = fmt.Sprintf("exited(%d)", st.ExitCode)
		case !st.Alive:
			state = "dead"
		}
		ew.printf("%2d %-10s %-16s %-10s evals=%d vector=0x%04x memory=%d\n",
			st.ID, st.Name, st.Program, state, st.Evals, registerVector(st.Registers), len(st.Memory))
		if memory && len(st.Memory) > 0 {
			ew.printf("%s", hex.Dump(st.Memory))
		}
	}

	if len(snap.Connections) > 0 {
		ew.printf("connections:\n")
		for _, c := range snap.Connections {
			ew.printf("  %s:0x%02x -> %s:0x%02x\n", names[int(c.Src)], c.SrcPort, names[int(c.Dst)], c.DstPort)
		}
	}
	if len(snap.Faults) > 0 {
		ew.printf("faults:\n")
		for _, f := range snap.Faults {
			ew.printf("  %s depth %d vector 0x%04x: %s\n", names[int(f.Instance)], f.Depth, f.Vector, f.Message)
		}
	}
	return ew.err
}

func registerVector(regs []byte) uint16 {
	if len(regs) <= int(device.LinkVectorLo) {
		return 0
	}
	return uint16(regs[device.LinkVectorHi])<<8 | uint16(regs[device.LinkVectorLo])
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
