package config

import (
	_ "embed"
	"strconv"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"go.uber.org/multierr"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/host"
	"github.com/wippyai/vmwire/router"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	// cue values are not safe for concurrent use
	schemaMu   sync.Mutex
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "compile wiring schema")
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Wiring"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks w against the schema, then resolves every reference.
// All problems are returned combined; use multierr.Errors to split them.
func (w *Wiring) Validate() error {
	if err := w.checkSchema(); err != nil {
		return err
	}
	_, err := w.resolve()
	return err
}

func (w *Wiring) checkSchema() error {
	ctx, def, err := schema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := def.Unify(ctx.Encode(w))
	verr := v.Validate(cue.Concrete(true))
	if verr == nil {
		return nil
	}
	var errs error
	for _, e := range cueerrors.Errors(verr) {
		path := e.Path()
		errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path...).
			Detail("%s", e.Error()).
			Build())
	}
	return errs
}

// Host converts w into the host's id-based wiring.
func (w *Wiring) Host() (host.Wiring, error) {
	return w.resolve()
}

func (w *Wiring) resolve() (host.Wiring, error) {
	var (
		errs error
		out  host.Wiring
	)
	names := make(map[string]int, len(w.Instances))
	for i, inst := range w.Instances {
		if inst.Name == "" {
			continue
		}
		if prev, dup := names[inst.Name]; dup {
			errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindDuplicate).
				Path("instances", strconv.Itoa(i), "name").
				Value(inst.Name).
				Detail("name %q already used by instance %d", inst.Name, prev).
				Build())
			continue
		}
		names[inst.Name] = i
	}

	lookup := func(ref Ref, path ...string) (vmwire.ID, bool) {
		if i, ok := names[string(ref)]; ok {
			return vmwire.ID(i), true
		}
		if n, err := strconv.Atoi(string(ref)); err == nil && n >= 0 && n < len(w.Instances) {
			return vmwire.ID(n), true
		}
		errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path...).
			Value(string(ref)).
			Detail("instance %q does not exist", ref).
			Build())
		return 0, false
	}

	for _, inst := range w.Instances {
		out.Instances = append(out.Instances, host.InstanceSpec{
			Name:    inst.Name,
			Program: inst.Program,
			Sink:    inst.Sink,
		})
	}

	type source struct {
		id   vmwire.ID
		port int
	}
	wired := make(map[source]int)
	for i, e := range w.Edges {
		idx := strconv.Itoa(i)
		from, okFrom := lookup(e.From, "edges", idx, "from")
		to, okTo := lookup(e.To, "edges", idx, "to")
		fromPort, toPort := e.Ports()
		if fromPort < 0 || fromPort > 0xff || toPort < 0 || toPort > 0xff {
			errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindOutOfBounds).
				Path("edges", idx).
				Detail("ports must be in [0, 255], got %d -> %d", fromPort, toPort).
				Build())
			continue
		}
		if !device.Routable(uint8(fromPort)) {
			errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindOutOfBounds).
				Path("edges", idx, "from_port").
				Value(fromPort).
				Detail("from_port %#02x is never routed (want %#02x..%#02x)",
					fromPort, device.LinkFirstOut, device.LinkLastOut).
				Build())
			continue
		}
		if !okFrom || !okTo {
			continue
		}
		key := source{from, fromPort}
		if prev, dup := wired[key]; dup {
			errs = multierr.Append(errs, errors.New(errors.PhaseConfig, errors.KindDuplicate).
				Path("edges", idx).
				Instance(int(from)).
				Value(fromPort).
				Detail("port %#02x of instance %d already wired by edge %d", fromPort, from, prev).
				Build())
			continue
		}
		wired[key] = i
		out.Edges = append(out.Edges, router.Connection{
			Src:     from,
			SrcPort: uint8(fromPort),
			Dst:     to,
			DstPort: uint8(toPort),
		})
	}

	for i, ref := range w.Start {
		if id, ok := lookup(ref, "start", strconv.Itoa(i)); ok {
			out.Start = append(out.Start, id)
		}
	}
	out.MaxDepth = w.MaxDepth

	if errs != nil {
		return host.Wiring{}, errs
	}
	return out, nil
}

// Name returns the display name of instance i: its declared name or its id.
func (w *Wiring) Name(i int) string {
	if i >= 0 && i < len(w.Instances) && w.Instances[i].Name != "" {
		return w.Instances[i].Name
	}
	return strconv.Itoa(i)
}
