package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/router"
)

func TestLoad_Formats(t *testing.T) {
	for _, name := range []string{"porporo.yaml", "porporo.toml"} {
		t.Run(name, func(t *testing.T) {
			w, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(w.Dir))
			require.Len(t, w.Instances, 6)
			assert.Equal(t, "porporo", w.Instances[0].Name)
			assert.Equal(t, "stdout", w.Instances[0].Sink)

			hw, err := w.Host()
			require.NoError(t, err)
			assert.Equal(t, []router.Connection{
				{Src: 5, SrcPort: 0x18, Dst: 2, DstPort: 0x12},
				{Src: 3, SrcPort: 0x18, Dst: 1, DstPort: 0x12},
				{Src: 2, SrcPort: 0x18, Dst: 0, DstPort: 0x12},
			}, hw.Edges)
			assert.Equal(t, []vmwire.ID{5}, hw.Start)
			assert.Equal(t, 32, hw.MaxDepth)
			assert.Equal(t, "builtin:hello", hw.Instances[5].Program)
		})
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	_, err := Load("wiring.json")
	assert.ErrorIs(t, err, errors.New(errors.PhaseParse, errors.KindUnsupported).Build())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, errors.New(errors.PhaseParse, errors.KindIO).Build())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("instances:\n  - {program: builtin:relay, colour: red}\n"), FormatYAML)
	assert.ErrorIs(t, err, errors.New(errors.PhaseParse, errors.KindInvalidData).Build())

	_, err = Parse([]byte("[[instances]]\nprogram = \"builtin:relay\"\ncolour = \"red\"\n"), FormatTOML)
	assert.ErrorIs(t, err, errors.New(errors.PhaseParse, errors.KindInvalidData).Build())
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no instances", "instances: []\n"},
		{"empty program", "instances:\n  - {program: \"\"}\n"},
		{"port out of range", "instances:\n  - {program: a}\nedges:\n  - {from: 0, to: 0, to_port: 300}\n"},
		{"unrouted from_port", "instances:\n  - {program: a}\nedges:\n  - {from: 0, from_port: 0x20, to: 0}\n"},
		{"vector from_port", "instances:\n  - {program: a}\nedges:\n  - {from: 0, from_port: 0x10, to: 0}\n"},
		{"bad name", "instances:\n  - {name: \"9lives\", program: a}\n"},
		{"negative depth", "instances:\n  - {program: a}\nmax_depth: -1\n"},
		{"too many", "instances:\n" + repeat("  - {program: a}\n", 17)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), FormatYAML)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.New(errors.PhaseConfig, errors.KindInvalidInput).Build())
		})
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func TestParse_CollectsEveryStructuralError(t *testing.T) {
	src := `
instances:
  - {name: a, program: builtin:relay}
  - {name: b, program: builtin:relay}
  - {name: a, program: builtin:relay}
edges:
  - {from: a, to: ghost}
  - {from: b, to: a}
  - {from: b, to: 0}
  - {from: 7, to: a}
start: [nobody]
`
	_, err := Parse([]byte(src), FormatYAML)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 5)

	kinds := map[errors.Kind]int{}
	for _, e := range errs {
		var ve *errors.Error
		require.ErrorAs(t, e, &ve)
		assert.Equal(t, errors.PhaseConfig, ve.Phase)
		kinds[ve.Kind]++
	}
	assert.Equal(t, map[errors.Kind]int{errors.KindDuplicate: 2, errors.KindNotFound: 3}, kinds)
}

func TestEdge_Ports(t *testing.T) {
	from, to := Edge{}.Ports()
	assert.Equal(t, 0x18, from)
	assert.Equal(t, 0x12, to)

	p, q := 0x19, 0x13
	from, to = Edge{FromPort: &p, ToPort: &q}.Ports()
	assert.Equal(t, 0x19, from)
	assert.Equal(t, 0x13, to)
}

func TestWiring_HostRejectsUnroutedPort(t *testing.T) {
	for _, port := range []int{0x05, 0x10, 0x11, 0x20} {
		p := port
		w := &Wiring{
			Instances: []Instance{{Program: "a"}, {Program: "b"}},
			Edges:     []Edge{{From: "0", FromPort: &p, To: "1"}},
		}
		_, err := w.Host()
		require.Error(t, err, "port %#02x", port)
		assert.ErrorIs(t, err, errors.New(errors.PhaseConfig, errors.KindOutOfBounds).Build())
	}

	p := 0x1f
	w := &Wiring{
		Instances: []Instance{{Program: "a"}, {Program: "b"}},
		Edges:     []Edge{{From: "0", FromPort: &p, To: "1"}},
	}
	hw, err := w.Host()
	require.NoError(t, err)
	require.Len(t, hw.Edges, 1)
	assert.Equal(t, uint8(0x1f), hw.Edges[0].SrcPort)
}

func TestWiring_Name(t *testing.T) {
	w := &Wiring{Instances: []Instance{{Name: "x"}, {}}}
	assert.Equal(t, "x", w.Name(0))
	assert.Equal(t, "1", w.Name(1))
	assert.Equal(t, "9", w.Name(9))
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog.wasm"), []byte{0, 'a', 's', 'm'}, 0o644))
	r := NewResolver(dir)

	b, err := r.Resolve(ctx, "builtin:relay")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 's', 'm'}, b[:4])

	b, err = r.Resolve(ctx, "prog.wasm")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 's', 'm'}, b)

	_, err = r.Resolve(ctx, "builtin:nope")
	assert.ErrorIs(t, err, errors.New(errors.PhaseLoad, errors.KindNotFound).Build())

	_, err = r.Resolve(ctx, "missing.wasm")
	assert.ErrorIs(t, err, errors.New(errors.PhaseLoad, errors.KindIO).Build())
}
