package main

import (
	"fmt"
	"io"
)

// disasmOpcode prints one opcode the way see shows it: literals as decimal,
// calls by dictionary name.
func (vm *VM) disasmOpcode(w io.Writer, opcode uint32) {
	if opcode&opCall == 0 {
		fmt.Fprintf(w, "\t%d\n", opcode)
		return
	}
	operand := opcode & opCallMask
	if operand < uint32(len(vm.funcs)) {
		fmt.Fprintf(w, "\t%s\n", vm.funcName(operand))
	} else {
		fmt.Fprintf(w, "\tcall(%d)\n", operand)
	}
}

// vmDumper renders a post-mortem view of a VM: registers, the four stacks,
// the stream and compile state, and the dictionary with disassembled bodies.
// Driven by the CLI -dump flag and the test harness failure path.
type vmDumper struct {
	vm  *VM
	out io.Writer

	rawWords bool
}

func (dump vmDumper) dump() {
	vm := dump.vm

	fmt.Fprintf(dump.out, "# VM Dump\n")
	fmt.Fprintf(dump.out, "  fp:%v ip:%v lp:%v quit:%v\n", vm.fp, vm.ip, vm.lp, vm.quit)
	if err := vm.except.err(); err != nil {
		fmt.Fprintf(dump.out, "  except: %v\n", err)
	}

	fmt.Fprintf(dump.out, "  stack: %v\n", vm.vs)
	fmt.Fprintf(dump.out, "  locals: %v\n", vm.ls)

	fmt.Fprintf(dump.out, "  return:")
	for _, r := range vm.rs {
		fmt.Fprintf(dump.out, " %v@%v/%v", dump.callName(r.fp), r.ip, r.lp)
	}
	fmt.Fprintf(dump.out, "\n")

	if len(vm.ss.starts) > 0 {
		fmt.Fprintf(dump.out, "# Strings\n")
		for i, start := range vm.ss.starts {
			fmt.Fprintf(dump.out, "  [%v] @%v %q\n", i, start, vm.stackString(start))
		}
	}

	if len(vm.strms) > 0 {
		fmt.Fprintf(dump.out, "# Streams\n")
		for i, strm := range vm.strms {
			fmt.Fprintf(dump.out, "  [%v] %v\n", i, strm.Name())
		}
	}

	if vm.compiling() {
		fmt.Fprintf(dump.out, "# Open Definitions\n")
		for _, entry := range vm.comp.frames {
			fmt.Fprintf(dump.out, "  %v %s ci:%v\n",
				entry.funcID, vm.funcName(entry.funcID), entry.ciStart)
		}
		fmt.Fprintf(dump.out, "  cis: %v\n", vm.comp.cis)
	}

	fmt.Fprintf(dump.out, "# Dictionary\n")
	for fidx := range vm.funcs {
		dump.dumpWord(uint32(fidx))
	}
}

func (dump vmDumper) dumpWord(fidx uint32) {
	vm := dump.vm
	f := &vm.funcs[fidx]

	fmt.Fprintf(dump.out, "  %v: %s", fidx, vm.constString(f.nameOffset))
	if f.immediate {
		fmt.Fprintf(dump.out, " immediate")
	}
	switch f.kind {
	case funcNative:
		if fidx < opMax {
			fmt.Fprintf(dump.out, " <opcode>")
		} else {
			fmt.Fprintf(dump.out, " <native>")
		}
		fmt.Fprintf(dump.out, "\n")
	case funcInterp:
		fmt.Fprintf(dump.out, " @%v+%v\n", f.insOffset, f.insCount)
		for i := uint32(0); i < f.insCount; i++ {
			vm.disasmOpcode(dump.out, vm.ins[f.insOffset+i])
		}
		if dump.rawWords {
			fmt.Fprintf(dump.out, "\t%v\n", vm.ins[f.insOffset:f.insOffset+f.insCount])
		}
	}
}

func (dump vmDumper) callName(fidx uint32) string {
	if name := dump.vm.funcName(fidx); name != "" {
		return name
	}
	return fmt.Sprintf("call(%v)", fidx)
}
