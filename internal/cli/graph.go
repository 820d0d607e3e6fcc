package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/config"
	"github.com/wippyai/vmwire/host"
	"github.com/wippyai/vmwire/router"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph <wiring>",
		Short: "Print the connection graph of a wiring",
		Long: `Print every instance with its outgoing connections, or a Graphviz
digraph with --dot.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := config.Load(args[0])
			if err != nil {
				return err
			}
			hw, err := w.Host()
			if err != nil {
				return err
			}
			if dot {
				return writeDOT(cmd.OutOrStdout(), hw)
			}
			return writeGraph(cmd.OutOrStdout(), hw)
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "emit Graphviz DOT")

	return cmd
}

func instanceName(hw host.Wiring, id vmwire.ID) string {
	if name := hw.Instances[id].Name; name != "" {
		return name
	}
	return id.String()
}

func isStart(hw host.Wiring, id vmwire.ID) bool {
	for _, s := range hw.Start {
		if s == id {
			return true
		}
	}
	return false
}

// writeGraph lists instances in id order, each followed by its outgoing
// connections in port order.
func writeGraph(w io.Writer, hw host.Wiring) error {
	table, err := router.NewTable(len(hw.Instances), hw.Edges)
	if err != nil {
		return err
	}

	var b strings.Builder
	for i, inst := range hw.Instances {
		id := vmwire.ID(i)
		fmt.Fprintf(&b, "%d %s %s", i, instanceName(hw, id), inst.Program)
		if inst.Sink != "" {
			fmt.Fprintf(&b, " sink=%s", inst.Sink)
		}
		if isStart(hw, id) {
			b.WriteString(" (start)")
		}
		b.WriteString("\n")
		for _, c := range table.Outgoing(id) {
			fmt.Fprintf(&b, "  0x%02x -> %s:0x%02x\n", c.SrcPort, instanceName(hw, c.Dst), c.DstPort)
		}
	}

	depth := hw.MaxDepth
	if depth <= 0 {
		fmt.Fprintf(&b, "max depth %d (default)\n", router.DefaultMaxDepth)
	} else {
		fmt.Fprintf(&b, "max depth %d\n", depth)
	}

	_, err = io.WriteString(w, b.String())
	return err
}

// writeDOT emits the wiring as a Graphviz digraph. Start instances get a
// double border; edges are labeled source:destination port.
func writeDOT(w io.Writer, hw host.Wiring) error {
	var b strings.Builder
	b.WriteString("digraph wiring {\n")
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\tnode [shape=box, fontname=\"monospace\"];\n")
	for i, inst := range hw.Instances {
		id := vmwire.ID(i)
		label := dotEscape(instanceName(hw, id)) + `\n` + dotEscape(inst.Program)
		fmt.Fprintf(&b, "\tn%d [label=\"%s\"", i, label)
		if isStart(hw, id) {
			b.WriteString(", peripheries=2")
		}
		b.WriteString("];\n")
	}
	for _, c := range hw.Edges {
		fmt.Fprintf(&b, "\tn%d -> n%d [label=\"0x%02x:0x%02x\"];\n", c.Src, c.Dst, c.SrcPort, c.DstPort)
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
