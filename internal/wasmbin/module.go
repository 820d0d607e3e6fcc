// Package wasmbin encodes small core wasm modules.
//
// It covers what the built-in guest programs need: i32 function types,
// function imports, one memory, exports, code and active data segments.
package wasmbin

import "fmt"

// Binary header.
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section ids.
const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11
)

// ValType is a value type.
type ValType byte

const I32 ValType = 0x7f

const (
	funcTypeForm = 0x60

	kindFunc   = 0x00
	kindMemory = 0x02

	limitsMinMax = 0x01
)

type funcType struct {
	params  []ValType
	results []ValType
}

func (t funcType) key() string {
	return fmt.Sprintf("%x>%x", t.params, t.results)
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	body   []byte
	typ    uint32
	locals uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	data   []byte
	offset uint32
}

type limits struct {
	min, max uint32
}

// Module collects definitions in index order.
type Module struct {
	typeIndex map[string]uint32
	memory    *limits
	types     []funcType
	imports   []importFunc
	funcs     []function
	exports   []export
	data      []segment
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{typeIndex: make(map[string]uint32)}
}

func (m *Module) typeOf(params, results []ValType) uint32 {
	t := funcType{params: params, results: results}
	if idx, ok := m.typeIndex[t.key()]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIndex[t.key()] = idx
	return idx
}

// ImportFunc declares an imported function and returns its index. Imports
// must be declared before any defined function.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: import declared after function")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeOf(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function with extra i32 locals and returns its index. The
// closing end is appended.
func (m *Module) Func(params, results []ValType, locals uint32, body *Code) uint32 {
	m.funcs = append(m.funcs, function{typ: m.typeOf(params, results), locals: locals, body: body.Bytes()})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module's memory in 64 KiB pages.
func (m *Module) Memory(min, max uint32) {
	m.memory = &limits{min: min, max: max}
}

// ExportFunc exports function idx as name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
}

// ExportMemory exports memory 0 as name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: kindMemory})
}

// Data places bytes in memory 0 at offset on instantiation.
func (m *Module) Data(offset uint32, data []byte) {
	m.data = append(m.data, segment{offset: offset, data: data})
}

// Encode returns the module binary.
func (m *Module) Encode() []byte {
	var out Writer
	out.Raw(Magic)
	out.Raw(Version)

	if len(m.types) > 0 {
		section(&out, sectionType, func(w *Writer) {
			w.U32(uint32(len(m.types)))
			for _, t := range m.types {
				w.Byte(funcTypeForm)
				valTypes(w, t.params)
				valTypes(w, t.results)
			}
		})
	}
	if len(m.imports) > 0 {
		section(&out, sectionImport, func(w *Writer) {
			w.U32(uint32(len(m.imports)))
			for _, imp := range m.imports {
				w.Name(imp.module)
				w.Name(imp.name)
				w.Byte(kindFunc)
				w.U32(imp.typ)
			}
		})
	}
	if len(m.funcs) > 0 {
		section(&out, sectionFunction, func(w *Writer) {
			w.U32(uint32(len(m.funcs)))
			for _, f := range m.funcs {
				w.U32(f.typ)
			}
		})
	}
	if m.memory != nil {
		section(&out, sectionMemory, func(w *Writer) {
			w.U32(1)
			w.Byte(limitsMinMax)
			w.U32(m.memory.min)
			w.U32(m.memory.max)
		})
	}
	if len(m.exports) > 0 {
		section(&out, sectionExport, func(w *Writer) {
			w.U32(uint32(len(m.exports)))
			for _, e := range m.exports {
				w.Name(e.name)
				w.Byte(e.kind)
				w.U32(e.idx)
			}
		})
	}
	if len(m.funcs) > 0 {
		section(&out, sectionCode, func(w *Writer) {
			w.U32(uint32(len(m.funcs)))
			for _, f := range m.funcs {
				var body Writer
				if f.locals > 0 {
					body.U32(1)
					body.U32(f.locals)
					body.Byte(byte(I32))
				} else {
					body.U32(0)
				}
				body.Raw(f.body)
				body.Byte(opEnd)
				w.Vec(body.Bytes())
			}
		})
	}
	if len(m.data) > 0 {
		section(&out, sectionData, func(w *Writer) {
			w.U32(uint32(len(m.data)))
			for _, d := range m.data {
				w.U32(0)
				w.Byte(opI32Const)
				w.S32(int32(d.offset))
				w.Byte(opEnd)
				w.Vec(d.data)
			}
		})
	}
	return out.Bytes()
}

func section(out *Writer, id byte, fill func(w *Writer)) {
	var body Writer
	fill(&body)
	out.Byte(id)
	out.Vec(body.Bytes())
}

func valTypes(w *Writer, ts []ValType) {
	w.U32(uint32(len(ts)))
	for _, t := range ts {
		w.Byte(byte(t))
	}
}
