package main

import "bytes"

type funcKind uint8

const (
	funcInterp funcKind = iota
	funcNative
)

// nativeFunc is the callback of a native word. Natives read and write the VM
// stacks directly; declared arities on native words are diagnostic only,
// while on the hardware opcode entries they set how many values execute
// pops before dispatch.
type nativeFunc func(vm *VM)

// allValues is the declared arity of words that consume the stream rather
// than a fixed number of stack values.
const allValues = 0xFFFFFFFF

// function is one dictionary entry. Interpreted entries point at a contiguous
// slice of the instruction heap; native entries carry a callback.
type function struct {
	kind       funcKind
	immediate  bool
	nameOffset uint32
	inVS       uint32
	outVS      uint32

	insOffset uint32
	insCount  uint32
	native    nativeFunc
}

// addConstString appends a NUL-terminated copy of s to the constant char
// segment and returns its start offset.
func (vm *VM) addConstString(s string) uint32 {
	if uint32(len(vm.chars))+uint32(len(s))+1 > vm.charCap {
		vm.except.chOF = true
		return 0
	}
	off := uint32(len(vm.chars))
	vm.chars = append(vm.chars, s...)
	vm.chars = append(vm.chars, 0)
	return off
}

// constString reads the NUL-terminated string at off in the char segment.
func (vm *VM) constString(off uint32) string {
	if off >= uint32(len(vm.chars)) {
		return ""
	}
	rest := vm.chars[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}

func (vm *VM) funcName(fidx uint32) string {
	if fidx >= uint32(len(vm.funcs)) {
		return ""
	}
	return vm.constString(vm.funcs[fidx].nameOffset)
}

// findFunction scans the dictionary newest to oldest so that later
// definitions shadow earlier ones.
func (vm *VM) findFunction(name string) (uint32, bool) {
	for fidx := len(vm.funcs) - 1; fidx >= 0; fidx-- {
		if vm.constString(vm.funcs[fidx].nameOffset) == name {
			return uint32(fidx), true
		}
	}
	return 0, false
}

// allocateInterpFunction appends an interpreted entry with an empty body and
// returns its index. The body is patched in when its definition closes.
func (vm *VM) allocateInterpFunction(name string) uint32 {
	if uint32(len(vm.funcs)) >= vm.funcCap {
		vm.except.fnOF = true
		return 0
	}
	f := function{
		kind:       funcInterp,
		nameOffset: vm.addConstString(name),
	}
	fidx := uint32(len(vm.funcs))
	vm.funcs = append(vm.funcs, f)
	return fidx
}

// setImmediate marks a just-allocated entry as immediate, so it runs during
// compilation instead of being compiled.
func (vm *VM) setImmediate(fidx uint32) {
	if fidx < uint32(len(vm.funcs)) {
		vm.funcs[fidx].immediate = true
	}
}

func (vm *VM) addNativeFunction(name string, immediate bool, native nativeFunc, inVS, outVS uint32) uint32 {
	if uint32(len(vm.funcs)) >= vm.funcCap {
		vm.except.fnOF = true
		return 0
	}
	f := function{
		kind:       funcNative,
		immediate:  immediate,
		nameOffset: vm.addConstString(name),
		inVS:       inVS,
		outVS:      outVS,
		native:     native,
	}
	fidx := uint32(len(vm.funcs))
	vm.funcs = append(vm.funcs, f)
	return fidx
}

//// string stack

// pushString copies s into the string arena NUL-terminated, records its start
// offset, and pushes that offset onto the value stack.
func (vm *VM) pushString(s string) {
	start, ok := vm.recordString(s)
	if !ok {
		return
	}
	vm.pushValue(start)
}

// recordString appends s to the arena without touching the value stack.
func (vm *VM) recordString(s string) (uint32, bool) {
	if uint32(len(vm.ss.chars))+uint32(len(s))+1 > vm.ss.charCap {
		vm.except.ssOF = true
		return 0, false
	}
	if uint32(len(vm.ss.starts)) >= vm.ss.startCap {
		vm.except.ssOF = true
		return 0, false
	}
	start := uint32(len(vm.ss.chars))
	vm.ss.chars = append(vm.ss.chars, s...)
	vm.ss.chars = append(vm.ss.chars, 0)
	vm.ss.starts = append(vm.ss.starts, start)
	return start, true
}

// popString truncates the arena back to the start of the top string.
func (vm *VM) popString() {
	i := len(vm.ss.starts) - 1
	if i < 0 {
		vm.except.ssUF = true
		return
	}
	vm.ss.chars = vm.ss.chars[:vm.ss.starts[i]]
	vm.ss.starts = vm.ss.starts[:i]
}

// topString returns the start offset of the top string.
func (vm *VM) topString() uint32 {
	i := len(vm.ss.starts) - 1
	if i < 0 {
		vm.except.ssUF = true
		return 0
	}
	return vm.ss.starts[i]
}

// stackString reads the NUL-terminated string at off in the string arena.
func (vm *VM) stackString(off uint32) string {
	if off >= uint32(len(vm.ss.chars)) {
		return ""
	}
	rest := vm.ss.chars[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest)
}
