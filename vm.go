package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/caarlos0/env/v6"

	"github.com/ncvm-io/ncvm/internal/flushio"
)

// Params fixes the capacity of every VM segment. Segments never grow; running
// into a cap raises the matching exception flag and aborts the current
// top-level execution.
type Params struct {
	MaxFunctionCount    uint32 `env:"NCVM_MAX_FUNCTIONS" envDefault:"4096"`
	MaxInstructionCount uint32 `env:"NCVM_MAX_INSTRUCTIONS" envDefault:"65536"`
	MaxCharSegmentSize  uint32 `env:"NCVM_MAX_CHARS" envDefault:"65536"`

	MaxValueCount  uint32 `env:"NCVM_MAX_VALUES" envDefault:"1024"`
	MaxLocalCount  uint32 `env:"NCVM_MAX_LOCALS" envDefault:"1024"`
	MaxReturnCount uint32 `env:"NCVM_MAX_RETURNS" envDefault:"1024"`

	MaxStreamCount uint32 `env:"NCVM_MAX_STREAMS" envDefault:"1024"`

	MaxStringCharCount uint32 `env:"NCVM_MAX_STRING_CHARS" envDefault:"131072"`
	MaxStringCount     uint32 `env:"NCVM_MAX_STRINGS" envDefault:"32768"`

	MaxCompileFrameCount uint32 `env:"NCVM_MAX_COMPILE_FRAMES" envDefault:"64"`
	MaxCompileInsCount   uint32 `env:"NCVM_MAX_COMPILE_INSTRUCTIONS" envDefault:"65536"`
}

// DefaultParams returns the reference capacities.
func DefaultParams() Params {
	return Params{
		MaxFunctionCount:     4096,
		MaxInstructionCount:  65536,
		MaxCharSegmentSize:   65536,
		MaxValueCount:        1024,
		MaxLocalCount:        1024,
		MaxReturnCount:       1024,
		MaxStreamCount:       1024,
		MaxStringCharCount:   131072,
		MaxStringCount:       32768,
		MaxCompileFrameCount: 64,
		MaxCompileInsCount:   65536,
	}
}

// ParamsFromEnv returns the reference capacities with any NCVM_* environment
// overrides applied.
func ParamsFromEnv() (Params, error) {
	var p Params
	err := env.Parse(&p)
	return p, err
}

// frame is a suspended call: the function index, the next instruction index
// within its body, and the local-stack base at the time of the call.
type frame struct {
	fp uint32
	ip uint32
	lp uint32
}

// fetchState carries one fetched opcode from fetch to execute. doReturn is
// set instead when ip has run off the end of the current body; isTail marks
// the last opcode of a body. Drivers may seed it directly to bootstrap a call
// that has no containing function.
type fetchState struct {
	opcode   uint32
	isTail   bool
	doReturn bool
}

// exceptFlags records abnormal conditions raised by primitives. The top-level
// driver checks them after every step and unwinds to the prompt when any is
// set. yield is not an error: it suspends the driver loop and is cleared on
// the way out.
type exceptFlags struct {
	vsOF, vsUF bool // value stack
	rsOF, rsUF bool // return stack
	lsOF, lsUF bool // local stack
	ssOF, ssUF bool // string stack
	fnOF       bool // function table
	insOF      bool // instruction heap
	chOF       bool // constant char segment
	strmOF     bool // stream stack
	cfOF       bool // compile frames
	cisOF      bool // compile instruction buffer
	divZero    bool
	badCall    bool

	yield bool
}

var (
	errValueOverflow    = errors.New("value stack overflow")
	errValueUnderflow   = errors.New("value stack underflow")
	errReturnOverflow   = errors.New("return stack overflow")
	errReturnUnderflow  = errors.New("return stack underflow")
	errLocalOverflow    = errors.New("local stack overflow")
	errLocalUnderflow   = errors.New("local stack underflow")
	errStringOverflow   = errors.New("string stack overflow")
	errStringUnderflow  = errors.New("string stack underflow")
	errFunctionOverflow = errors.New("function table overflow")
	errInsOverflow      = errors.New("instruction heap overflow")
	errCharOverflow     = errors.New("char segment overflow")
	errStreamOverflow   = errors.New("stream stack overflow")
	errCompileFrames    = errors.New("compile frame overflow")
	errCompileIns       = errors.New("compile instruction overflow")
	errDivideByZero     = errors.New("division by zero")
	errBadCall          = errors.New("call of unknown function")
)

// raised reports whether any abnormal flag is set; yield does not count.
func (ef *exceptFlags) raised() bool {
	return ef.vsOF || ef.vsUF || ef.rsOF || ef.rsUF ||
		ef.lsOF || ef.lsUF || ef.ssOF || ef.ssUF ||
		ef.fnOF || ef.insOF || ef.chOF || ef.strmOF ||
		ef.cfOF || ef.cisOF || ef.divZero || ef.badCall
}

// err describes the first raised flag.
func (ef *exceptFlags) err() error {
	switch {
	case ef.vsOF:
		return errValueOverflow
	case ef.vsUF:
		return errValueUnderflow
	case ef.rsOF:
		return errReturnOverflow
	case ef.rsUF:
		return errReturnUnderflow
	case ef.lsOF:
		return errLocalOverflow
	case ef.lsUF:
		return errLocalUnderflow
	case ef.ssOF:
		return errStringOverflow
	case ef.ssUF:
		return errStringUnderflow
	case ef.fnOF:
		return errFunctionOverflow
	case ef.insOF:
		return errInsOverflow
	case ef.chOF:
		return errCharOverflow
	case ef.strmOF:
		return errStreamOverflow
	case ef.cfOF:
		return errCompileFrames
	case ef.cisOF:
		return errCompileIns
	case ef.divZero:
		return errDivideByZero
	case ef.badCall:
		return errBadCall
	}
	return nil
}

func (ef *exceptFlags) clear() {
	y := ef.yield
	*ef = exceptFlags{}
	ef.yield = y
}

// stringStack is a bump arena of NUL-terminated strings plus the start offset
// of each. Pop truncates the arena back to the top string's start.
type stringStack struct {
	chars    []byte
	charCap  uint32
	starts   []uint32
	startCap uint32
}

// compileEntry is one pending definition: the allocated function index and
// the scratch-buffer offset its body starts at.
type compileEntry struct {
	funcID  uint32
	ciStart uint32
}

// compiler buffers opcodes for the definitions currently open. Entries nest;
// closing one copies its scratch range into the instruction heap.
type compiler struct {
	frames   []compileEntry
	frameCap uint32
	cis      []uint32
	cisCap   uint32
}

// suspension remembers the driver depth of a computation stopped by yield, so
// that resume can pick it back up.
type suspension struct {
	depth int
	ok    bool
}

// VM is the whole machine: the shared dictionary, instruction heap and char
// segment, the three data stacks plus the string stack, the stream stack the
// tokenizer reads from, and the compiler scratch state. Every operation takes
// it by pointer; nothing is shared between VMs.
type VM struct {
	logging

	quit   bool
	prompt bool

	funcs   []function
	funcCap uint32

	ins    []uint32
	insCap uint32

	chars   []byte
	charCap uint32

	vs    []uint32
	vsCap uint32

	ls    []uint32
	lsCap uint32

	rs    []frame
	rsCap uint32

	ss stringStack

	fp uint32
	ip uint32
	lp uint32

	fetchState fetchState
	except     exceptFlags
	susp       suspension

	comp compiler

	strms   []*Stream
	strmCap uint32

	queue []io.Reader
	loads []string

	out    flushio.WriteFlusher
	errOut flushio.WriteFlusher

	closers []io.Closer
	ctx     context.Context
}

func (vm *VM) setCaps(p Params) {
	vm.funcCap = p.MaxFunctionCount
	vm.insCap = p.MaxInstructionCount
	vm.charCap = p.MaxCharSegmentSize
	vm.vsCap = p.MaxValueCount
	vm.lsCap = p.MaxLocalCount
	vm.rsCap = p.MaxReturnCount
	vm.strmCap = p.MaxStreamCount
	vm.ss.charCap = p.MaxStringCharCount
	vm.ss.startCap = p.MaxStringCount
	vm.comp.frameCap = p.MaxCompileFrameCount
	vm.comp.cisCap = p.MaxCompileInsCount
}

// registerDict installs the hardware opcodes in the first opMax dictionary
// slots followed by the standard words.
func (vm *VM) registerDict() {
	if len(vm.funcs) > 0 {
		return
	}
	registerOpcodes(vm)
	registerStdWords(vm)
}

//// value stack

func (vm *VM) pushValue(v uint32) {
	if uint32(len(vm.vs)) >= vm.vsCap {
		vm.except.vsOF = true
		return
	}
	vm.vs = append(vm.vs, v)
}

func (vm *VM) popValue() uint32 {
	i := len(vm.vs) - 1
	if i < 0 {
		vm.except.vsUF = true
		return 0
	}
	v := vm.vs[i]
	vm.vs = vm.vs[:i]
	return v
}

//// local stack

func (vm *VM) pushLocal(v uint32) {
	if uint32(len(vm.ls)) >= vm.lsCap {
		vm.except.lsOF = true
		return
	}
	vm.ls = append(vm.ls, v)
}

func (vm *VM) localValue(lidx uint32) uint32 {
	i := vm.lp + lidx
	if i >= uint32(len(vm.ls)) {
		vm.except.lsUF = true
		return 0
	}
	return vm.ls[i]
}

//// return stack

func (vm *VM) pushReturn() {
	if uint32(len(vm.rs)) >= vm.rsCap {
		vm.except.rsOF = true
		return
	}
	vm.rs = append(vm.rs, frame{fp: vm.fp, ip: vm.ip, lp: vm.lp})
}

func (vm *VM) popReturn() {
	i := len(vm.rs) - 1
	if i < 0 {
		vm.except.rsUF = true
		return
	}
	r := vm.rs[i]
	vm.rs = vm.rs[:i]
	vm.fp, vm.ip, vm.lp = r.fp, r.ip, r.lp
}

//// halting

// vmHaltError wraps a hard failure (io, context) that terminates Run; soft
// interpreter exceptions go through exceptFlags instead and unwind to the
// prompt.
type vmHaltError struct{ error }

func (err vmHaltError) Error() string {
	if err.error != nil {
		return fmt.Sprintf("VM halted: %v", err.error)
	}
	return "VM halted"
}
func (err vmHaltError) Unwrap() error { return err.error }

func (vm *VM) halt(err error) {
	if vm.out != nil {
		if ferr := vm.out.Flush(); err == nil {
			err = ferr
		}
	}
	err = vmHaltError{err}
	vm.logf("#", "halt error: %v", err)
	panic(err)
}

func (vm *VM) haltif(err error) {
	if err != nil {
		vm.halt(err)
	}
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
