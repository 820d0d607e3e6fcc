package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/vmwire/config"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/engine"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/host"
	"github.com/wippyai/vmwire/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Input       string
	TracePath   string
	DumpPath    string
	MaxDepth    int
	Interactive bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <wiring>",
		Short: "Boot a wiring and feed stdin to one instance",
		Long: `Boot every instance of a wiring, then send each byte read from stdin to
the data port of the --input instance. Stops at end of input or when the
input instance exits; the exit status is the instance's exit code.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Interactive {
				return runMonitor(cmd.Context(), rootOpts, opts, args[0])
			}
			return runWiring(cmd.Context(), rootOpts, opts, args[0],
				cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "instance receiving stdin")
	cmd.Flags().StringVar(&opts.TracePath, "trace", "", "record routing events to this SQLite database")
	cmd.Flags().StringVar(&opts.DumpPath, "dump", "", "write a CBOR snapshot to this file on exit")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "override the nesting limit")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "interactive monitor")

	return cmd
}

func runWiring(ctx context.Context, rootOpts *RootOptions, opts *RunOptions, path string, stdin io.Reader, stdout, stderr io.Writer) error {
	out := host.NewWriterSink(stdout)
	errOut := host.NewWriterSink(stderr)
	s, err := openSession(ctx, rootOpts.Logger(), opts, path, map[string]host.Sink{
		"stdout": out,
		"stderr": errOut,
	})
	if err != nil {
		return err
	}

	err = s.feed(ctx, stdin)
	err = multierr.Combine(err, out.Err(), errOut.Err())
	if opts.DumpPath != "" {
		err = multierr.Append(err, s.dump(opts.DumpPath))
	}
	err = multierr.Append(err, s.close(ctx))
	if err != nil {
		return err
	}
	if code := s.exitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// session is a booted host plus everything it owns.
type session struct {
	host   *host.Host
	engine *engine.Engine
	db     *trace.SQLite
	input  *host.Instance
	log    *zap.Logger
}

// openSession loads the wiring at path and boots it. sinks replace the
// host's named sinks; rec receives routing events besides the trace log.
func openSession(ctx context.Context, log *zap.Logger, opts *RunOptions, path string, sinks map[string]host.Sink, rec ...trace.Recorder) (s *session, err error) {
	w, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	hw, err := w.Host()
	if err != nil {
		return nil, err
	}

	s = &session{log: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.close(ctx))
			s = nil
		}
	}()

	id := uuid.Must(uuid.NewV7()).String()
	recorders := append([]trace.Recorder{trace.NewZap(log.Named("trace"))}, rec...)
	if opts.TracePath != "" {
		s.db, err = trace.OpenSQLite(ctx, opts.TracePath, id)
		if err != nil {
			return s, err
		}
		recorders = append(recorders, s.db)
	}

	s.engine, err = engine.New(ctx, config.NewResolver(w.Dir))
	if err != nil {
		return s, err
	}

	hopts := []host.Option{
		host.WithSession(id),
		host.WithRecorder(trace.Multi(recorders...)),
	}
	for name, sink := range sinks {
		hopts = append(hopts, host.WithSink(name, sink))
	}
	if opts.MaxDepth > 0 {
		hopts = append(hopts, host.WithMaxDepth(opts.MaxDepth))
	}
	s.host, err = host.New(ctx, hw, s.engine, hopts...)
	if err != nil {
		return s, err
	}

	if opts.Input != "" {
		s.input = s.host.Lookup(opts.Input)
		if s.input == nil {
			return s, errors.NotFound(errors.PhaseConfig, "input instance", opts.Input)
		}
	}
	for _, f := range s.host.Faults() {
		log.Warn("boot fault", zap.Int("instance", int(f.Instance)), zap.String("error", f.Message))
	}
	return s, nil
}

// feed sends r byte by byte to the input instance.
func (s *session) feed(ctx context.Context, r io.Reader) error {
	if s.input == nil {
		return nil
	}
	br := bufio.NewReader(r)
	for !s.input.Exited() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "read input")
		}
		if err := s.send(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) send(ctx context.Context, b byte) error {
	before := len(s.host.Faults())
	if err := s.host.Send(ctx, s.input.ID(), device.LinkData, b); err != nil {
		return err
	}
	for _, f := range s.host.Faults()[before:] {
		s.log.Warn("fault", zap.Int("instance", int(f.Instance)), zap.Int("depth", f.Depth), zap.String("error", f.Message))
	}
	return nil
}

// exitCode is the input instance's exit code, or the first exit code
// latched by any instance when there is no input.
func (s *session) exitCode() int {
	if s.input != nil {
		return s.input.ExitCode()
	}
	for _, inst := range s.host.Instances() {
		if inst.Exited() {
			return inst.ExitCode()
		}
	}
	return 0
}

func (s *session) dump(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.PhaseSnapshot, errors.KindIO, err, "create dump")
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return s.host.Snapshot().Encode(f)
}

func (s *session) close(ctx context.Context) error {
	var err error
	if s.host != nil {
		err = multierr.Append(err, s.host.Close(ctx))
	}
	if s.engine != nil {
		err = multierr.Append(err, s.engine.Close(ctx))
	}
	if s.db != nil {
		err = multierr.Combine(err, s.db.Err(), s.db.Close())
	}
	return err
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
