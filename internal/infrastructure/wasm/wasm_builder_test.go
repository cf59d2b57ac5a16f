package wasm

import (
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm/hostfuncs"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Minimal WebAssembly binary encoder for test fixtures.

const (
	i32 byte = 0x7f
	i64 byte = 0x7e

	opUnreachable byte = 0x00
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opI32Load     byte = 0x28
	opI64Store    byte = 0x37
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42

	exportFunc   byte = 0x00
	exportMemory byte = 0x02
)

type funcType struct {
	params  []byte
	results []byte
}

type wasmImport struct {
	module  string
	name    string
	typeIdx uint32
}

type wasmExport struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	bytes  []byte
	offset int64
}

type testModule struct {
	types   []funcType
	imports []wasmImport
	funcs   []uint32 // type index of each defined function
	exports []wasmExport
	bodies  [][]byte // instructions of each defined function, without the final end
	data    []dataSegment
	memory  uint32 // pages; 0 means no memory section
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func encName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb(uint64(len(content)))...)
	return append(out, content...)
}

func (m testModule) encode() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var items [][]byte
		for _, ft := range m.types {
			item := []byte{0x60}
			item = append(item, vec(bytesAsItems(ft.params)...)...)
			item = append(item, vec(bytesAsItems(ft.results)...)...)
			items = append(items, item)
		}
		out = append(out, section(1, vec(items...))...)
	}

	if len(m.imports) > 0 {
		var items [][]byte
		for _, imp := range m.imports {
			item := append(encName(imp.module), encName(imp.name)...)
			item = append(item, 0x00)
			item = append(item, uleb(uint64(imp.typeIdx))...)
			items = append(items, item)
		}
		out = append(out, section(2, vec(items...))...)
	}

	if len(m.funcs) > 0 {
		var items [][]byte
		for _, idx := range m.funcs {
			items = append(items, uleb(uint64(idx)))
		}
		out = append(out, section(3, vec(items...))...)
	}

	if m.memory > 0 {
		out = append(out, section(5, vec(append([]byte{0x00}, uleb(uint64(m.memory))...)))...)
	}

	if len(m.exports) > 0 {
		var items [][]byte
		for _, exp := range m.exports {
			item := append(encName(exp.name), exp.kind)
			item = append(item, uleb(uint64(exp.idx))...)
			items = append(items, item)
		}
		out = append(out, section(7, vec(items...))...)
	}

	if len(m.bodies) > 0 {
		var items [][]byte
		for _, instrs := range m.bodies {
			body := append([]byte{0x00}, instrs...)
			body = append(body, opEnd)
			items = append(items, append(uleb(uint64(len(body))), body...))
		}
		out = append(out, section(10, vec(items...))...)
	}

	if len(m.data) > 0 {
		var items [][]byte
		for _, seg := range m.data {
			item := []byte{0x00, opI32Const}
			item = append(item, sleb(seg.offset)...)
			item = append(item, opEnd)
			item = append(item, uleb(uint64(len(seg.bytes)))...)
			item = append(item, seg.bytes...)
			items = append(items, item)
		}
		out = append(out, section(11, vec(items...))...)
	}

	return out
}

func bytesAsItems(b []byte) [][]byte {
	items := make([][]byte, len(b))
	for i := range b {
		items[i] = []byte{b[i]}
	}
	return items
}

func i32Const(v int64) []byte {
	return append([]byte{opI32Const}, sleb(v)...)
}

func call(idx uint32) []byte {
	return append([]byte{opCall}, uleb(uint64(idx))...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var voidType = funcType{}

// cleanModule returns from _start.
func cleanModule() []byte {
	return testModule{
		types:   []funcType{voidType},
		funcs:   []uint32{0},
		exports: []wasmExport{{StartFunction, exportFunc, 0}},
		bodies:  [][]byte{nil},
	}.encode()
}

// trapModule executes unreachable in _start.
func trapModule() []byte {
	return testModule{
		types:   []funcType{voidType},
		funcs:   []uint32{0},
		exports: []wasmExport{{StartFunction, exportFunc, 0}},
		bodies:  [][]byte{{opUnreachable}},
	}.encode()
}

// exitModule calls proc_exit(code).
func exitModule(code int64) []byte {
	return testModule{
		types:   []funcType{{params: []byte{i32}}, voidType},
		imports: []wasmImport{{wasi_snapshot_preview1.ModuleName, "proc_exit", 0}},
		funcs:   []uint32{1},
		exports: []wasmExport{{StartFunction, exportFunc, 1}},
		bodies:  [][]byte{concat(i32Const(code), call(0))},
	}.encode()
}

// sizesModule exits with the first count reported by a WASI *_sizes_get
// function (args_sizes_get or environ_sizes_get).
func sizesModule(function string) []byte {
	return testModule{
		types: []funcType{
			{params: []byte{i32, i32}, results: []byte{i32}},
			{params: []byte{i32}},
			voidType,
		},
		imports: []wasmImport{
			{wasi_snapshot_preview1.ModuleName, function, 0},
			{wasi_snapshot_preview1.ModuleName, "proc_exit", 1},
		},
		funcs:  []uint32{2},
		memory: 1,
		exports: []wasmExport{
			{StartFunction, exportFunc, 2},
			{"memory", exportMemory, 0},
		},
		bodies: [][]byte{concat(
			i32Const(0), i32Const(4), call(0), []byte{opDrop},
			i32Const(0), []byte{opI32Load, 0x02, 0x00},
			call(1),
		)},
	}.encode()
}

// preopenModule exits with the errno of fd_prestat_get(3).
func preopenModule() []byte {
	return testModule{
		types: []funcType{
			{params: []byte{i32, i32}, results: []byte{i32}},
			{params: []byte{i32}},
			voidType,
		},
		imports: []wasmImport{
			{wasi_snapshot_preview1.ModuleName, "fd_prestat_get", 0},
			{wasi_snapshot_preview1.ModuleName, "proc_exit", 1},
		},
		funcs:  []uint32{2},
		memory: 1,
		exports: []wasmExport{
			{StartFunction, exportFunc, 2},
			{"memory", exportMemory, 0},
		},
		bodies: [][]byte{concat(i32Const(3), i32Const(16), call(0), call(1))},
	}.encode()
}

// importModule imports module.name as () -> () and exports an empty _start.
func importModule(module, name string) []byte {
	return testModule{
		types:   []funcType{voidType},
		imports: []wasmImport{{module, name, 0}},
		funcs:   []uint32{0},
		exports: []wasmExport{{StartFunction, exportFunc, 1}},
		bodies:  [][]byte{nil},
	}.encode()
}

// exportModule exports a single function of type ft under name. The body
// returns zero for each i32 result.
func exportModule(name string, ft funcType) []byte {
	var body []byte
	for range ft.results {
		body = append(body, i32Const(0)...)
	}
	return testModule{
		types:   []funcType{ft},
		funcs:   []uint32{0},
		exports: []wasmExport{{name, exportFunc, 0}},
		bodies:  [][]byte{body},
	}.encode()
}

// Memory layout of networkModule.
const (
	responseSlot   = 2048 // _start stores the packed response here
	allocateResult = 4096 // allocate always returns this address
)

// networkModule sends request (placed at address 0) through
// kube_outbound_http.request and stores the packed response at responseSlot.
func networkModule(request []byte) []byte {
	return testModule{
		types: []funcType{
			{params: []byte{i64}, results: []byte{i64}},
			voidType,
			{params: []byte{i32}, results: []byte{i32}},
		},
		imports: []wasmImport{{hostfuncs.NetworkModuleName, hostfuncs.RequestFunctionName, 0}},
		funcs:   []uint32{1, 2},
		memory:  1,
		exports: []wasmExport{
			{StartFunction, exportFunc, 1},
			{"allocate", exportFunc, 2},
			{"memory", exportMemory, 0},
		},
		bodies: [][]byte{
			concat(
				i32Const(responseSlot),
				append([]byte{opI64Const}, sleb(int64(len(request)))...),
				call(0),
				[]byte{opI64Store, 0x03, 0x00},
			),
			i32Const(allocateResult),
		},
		data: []dataSegment{{offset: 0, bytes: request}},
	}.encode()
}
