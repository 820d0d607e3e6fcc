// Package config loads wiring descriptors.
//
// A descriptor lists instances in id order, edges between their link ports
// and the instances to run once the router is armed. YAML and TOML are
// accepted, chosen by file extension:
//
//	instances:
//	  - {name: hello, program: "builtin:hello"}
//	  - {name: console, program: "builtin:sink", sink: stdout}
//	edges:
//	  - {from: hello, to: console}   # ports default to 0x18 -> 0x12
//	start: [hello]
//
// Edge endpoints and start entries name an instance or give its numeric id.
// Descriptors are checked against an embedded CUE schema and then
// structurally; every problem found is reported together.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
)

// Default edge ports.
const (
	DefaultFromPort = int(device.LinkWrite)
	DefaultToPort   = int(device.LinkData)
)

// Format is a descriptor encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Wiring is a decoded descriptor.
type Wiring struct {
	Instances []Instance `yaml:"instances" toml:"instances" json:"instances"`
	Edges     []Edge     `yaml:"edges" toml:"edges" json:"edges,omitempty"`
	Start     []Ref      `yaml:"start" toml:"start" json:"start,omitempty"`
	MaxDepth  int        `yaml:"max_depth" toml:"max_depth" json:"max_depth,omitempty"`

	// Path is the file the wiring was loaded from and Dir its directory;
	// relative program paths resolve against Dir.
	Path string `yaml:"-" toml:"-" json:"-"`
	Dir  string `yaml:"-" toml:"-" json:"-"`
}

// Instance places one program.
type Instance struct {
	Name    string `yaml:"name" toml:"name" json:"name,omitempty"`
	Program string `yaml:"program" toml:"program" json:"program"`
	Sink    string `yaml:"sink" toml:"sink" json:"sink,omitempty"`
}

// Edge connects a source port to a destination port. Nil ports take the
// defaults.
type Edge struct {
	FromPort *int `yaml:"from_port" toml:"from_port" json:"from_port,omitempty"`
	ToPort   *int `yaml:"to_port" toml:"to_port" json:"to_port,omitempty"`
	From     Ref  `yaml:"from" toml:"from" json:"from"`
	To       Ref  `yaml:"to" toml:"to" json:"to"`
}

// Ports returns the edge ports with defaults applied.
func (e Edge) Ports() (from, to int) {
	from, to = DefaultFromPort, DefaultToPort
	if e.FromPort != nil {
		from = *e.FromPort
	}
	if e.ToPort != nil {
		to = *e.ToPort
	}
	return from, to
}

// Ref names an instance or gives its numeric id. Both YAML and TOML accept
// either a string or an integer.
type Ref string

func (r *Ref) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return errors.New(errors.PhaseParse, errors.KindInvalidData).
			Detail("line %d: instance reference must be a name or id", n.Line).
			Build()
	}
	*r = Ref(n.Value)
	return nil
}

func (r *Ref) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		*r = Ref(v)
	case int64:
		*r = Ref(strconv.FormatInt(v, 10))
	default:
		return errors.New(errors.PhaseParse, errors.KindInvalidData).
			Detail("instance reference must be a name or id, got %T", v).
			Build()
	}
	return nil
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.New(errors.PhaseParse, errors.KindUnsupported).
		Value(path).
		Detail("unknown descriptor extension %q (want .yaml, .yml or .toml)", filepath.Ext(path)).
		Build()
}

// Load reads, decodes and validates the descriptor at path.
func Load(path string) (*Wiring, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "read "+path)
	}
	w, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindIO, err, "resolve "+path)
	}
	w.Path = abs
	w.Dir = filepath.Dir(abs)
	return w, nil
}

// Parse decodes and validates a descriptor. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Wiring, error) {
	var w Wiring
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&w); err != nil {
			return nil, errors.ParseFailed("yaml wiring", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &w)
		if err != nil {
			return nil, errors.ParseFailed("toml wiring", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Value(undecoded[0].String()).
				Detail("unknown field %q", undecoded[0].String()).
				Build()
		}
	default:
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Value(string(format)).
			Detail("unknown format %q", format).
			Build()
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}
