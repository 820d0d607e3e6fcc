package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/wippyai/vmwire/config"
)

// ValidationResult is the JSON form of a validate run.
type ValidationResult struct {
	Errors      []string `json:"errors,omitempty"`
	Instances   int      `json:"instances"`
	Connections int      `json:"connections"`
	Valid       bool     `json:"valid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <wiring>",
		Short: "Check a wiring file without booting it",
		Long: `Decode a wiring file, check it against the schema and resolve every
instance reference. All structural problems are reported at once.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, w io.Writer) error {
	res := ValidationResult{}
	wiring, err := config.Load(path)
	if err == nil {
		hw, herr := wiring.Host()
		err = herr
		res.Instances = len(hw.Instances)
		res.Connections = len(hw.Edges)
	}
	for _, e := range multierr.Errors(err) {
		res.Errors = append(res.Errors, e.Error())
	}
	res.Valid = err == nil

	if opts.Format == "json" {
		if werr := writeJSON(w, res); werr != nil {
			return werr
		}
	} else if res.Valid {
		fmt.Fprintf(w, "%s: ok (%d instances, %d connections)\n", path, res.Instances, res.Connections)
	} else {
		for _, msg := range res.Errors {
			fmt.Fprintf(w, "%s: %s\n", path, msg)
		}
	}
	if !res.Valid {
		return &ExitError{Code: 1}
	}
	return nil
}
