package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	Session string
	Kinds   []string
	Limit   int
}

var traceKinds = []trace.Kind{
	trace.KindWrite,
	trace.KindInject,
	trace.KindEval,
	trace.KindIdle,
	trace.KindFault,
	trace.KindExit,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace <db>",
		Short: "List sessions or events recorded by run --trace",
		Long: `Without --session, list the sessions stored in a trace database, oldest
first. With --session, print that session's events in sequence order.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if opts.Session == "" {
				sessions, err := trace.Sessions(ctx, args[0])
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return writeJSON(out, sessions)
				}
				for _, s := range sessions {
					fmt.Fprintln(out, s)
				}
				return nil
			}

			kinds, err := parseKinds(opts.Kinds)
			if err != nil {
				return err
			}
			events, err := trace.Load(ctx, args[0], opts.Session)
			if err != nil {
				return err
			}
			events = filterEvents(events, kinds, opts.Limit)
			if rootOpts.Format == "json" {
				return writeJSON(out, events)
			}
			for _, ev := range events {
				fmt.Fprintln(out, ev.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to print")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only these event kinds (write,inject,eval,idle,fault,exit)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "print at most this many events")

	return cmd
}

func parseKinds(names []string) ([]trace.Kind, error) {
	var kinds []trace.Kind
	for _, n := range names {
		k := trace.Kind(strings.TrimSpace(n))
		if !slices.Contains(traceKinds, k) {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("kind").
				Value(n).
				Detail("unknown event kind %q", n).
				Build()
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func filterEvents(events []trace.Event, kinds []trace.Kind, limit int) []trace.Event {
	out := events[:0:0]
	for _, ev := range events {
		if len(kinds) > 0 && !slices.Contains(kinds, ev.Kind) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
