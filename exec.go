package main

// Opcode format: bit 31 clear pushes the low 31 bits as a literal; bit 31 set
// calls the dictionary entry named by the low 31 bits. Entries below opMax
// are hardware opcodes dispatched inline by execute.
const (
	opValue    = 0x00000000
	opCall     = 0x80000000
	opCallMask = 0x7FFFFFFF
)

const (
	opNop = iota

	opDrop
	opDup
	opRevReadVS // peek with 0 = top of the value stack

	opU32Add
	opU32Sub
	opU32Mul
	opU32Div
	opU32Mod

	opU32And
	opU32Or
	opU32Xor
	opU32Inv

	opU32Shl
	opU32Shr

	opU32Eq
	opU32Neq
	opU32Geq
	opU32Leq
	opU32Gt
	opU32Lt

	opCond // if then else (BOOL @THEN @ELSE)

	opCallInd

	opPushLocal
	opReadLocal

	opYield // suspend; the next step continues at ip + 1

	opMax
)

var opcodes = [opMax]struct {
	name  string
	inVS  uint32
	outVS uint32
}{
	opNop:       {"nop", 0, 0},
	opDrop:      {"vs.drop", 1, 0},
	opDup:       {"vs.dup", 1, 1},
	opRevReadVS: {"vs.rev.read", 1, 1},

	opU32Add: {"u32.add", 2, 1},
	opU32Sub: {"u32.sub", 2, 1},
	opU32Mul: {"u32.mul", 2, 1},
	opU32Div: {"u32.div", 2, 1},
	opU32Mod: {"u32.mod", 2, 1},

	opU32And: {"u32.and", 2, 1},
	opU32Or:  {"u32.or", 2, 1},
	opU32Xor: {"u32.xor", 2, 1},
	opU32Inv: {"u32.not", 1, 1},

	opU32Shl: {"u32.shl", 2, 1},
	opU32Shr: {"u32.shr", 2, 1},

	opU32Eq:  {"u32.eq", 2, 1},
	opU32Neq: {"u32.neq", 2, 1},
	opU32Geq: {"u32.geq", 2, 1},
	opU32Leq: {"u32.leq", 2, 1},
	opU32Gt:  {"u32.gt", 2, 1},
	opU32Lt:  {"u32.lt", 2, 1},

	opCond: {"cond", 3, 0},

	opCallInd: {"call", 1, 0},

	opPushLocal: {"ls.push", 1, 0},
	opReadLocal: {"ls.read", 1, 1},

	opYield: {"yield", 0, 0},
}

// registerOpcodes claims the first opMax dictionary indices for the hardware
// opcodes, so that a call opcode's operand below opMax names one directly.
func registerOpcodes(vm *VM) {
	for _, op := range opcodes {
		vm.addNativeFunction(op.name, false, nil, op.inVS, op.outVS)
	}
}

// fetch reads the next opcode of the current body into fetchState, advancing
// ip. Running off the end of the body (or sitting in a native entry, whose
// body length is zero) records a return instead.
func (vm *VM) fetch() {
	if vm.fp >= uint32(len(vm.funcs)) {
		vm.except.badCall = true
		return
	}
	fn := &vm.funcs[vm.fp]
	var insCount uint32
	if fn.kind == funcInterp {
		insCount = fn.insCount
	}
	vm.fetchState.doReturn = vm.ip >= insCount
	if !vm.fetchState.doReturn {
		vm.fetchState.opcode = vm.ins[fn.insOffset+vm.ip]
		vm.ip++
		vm.fetchState.isTail = vm.ip >= insCount
	}
}

// setCall seeds the fetch state with a synthetic call of word, as if it had
// just been fetched from a containing body.
func (vm *VM) setCall(word uint32) {
	vm.fetchState = fetchState{opcode: word | opCall}
	vm.fp = word & opCallMask
	vm.ip = 0
}

// setTailCall is setCall in tail position: executing it will not grow the
// return stack.
func (vm *VM) setTailCall(word uint32) {
	vm.fetchState = fetchState{opcode: word | opCall, isTail: true}
	vm.fp = word & opCallMask
	vm.ip = 0
}

// execute runs the opcode recorded by fetch.
func (vm *VM) execute() {
	if vm.fetchState.doReturn {
		vm.popReturn()
		vm.logf("<", "ret to %v:%v rs:%v", vm.fp, vm.ip, len(vm.rs))
		return
	}

	opcode := vm.fetchState.opcode
	isTail := vm.fetchState.isTail
	operand := opcode & opCallMask

	if opcode&opCall == 0 {
		vm.logf(".", "[%v] %v", len(vm.vs), operand)
		vm.pushValue(operand)
		return
	}

	if operand >= uint32(len(vm.funcs)) {
		vm.except.badCall = true
		return
	}
	fn := &vm.funcs[operand]

	if operand < opMax {
		// hardware opcode: pre-pop the declared inputs, eldest first
		var s0, s1, s2, s3 uint32
		switch fn.inVS {
		case 0:
		case 1:
			s0 = vm.popValue()
		case 2:
			s1 = vm.popValue()
			s0 = vm.popValue()
		case 3:
			s2 = vm.popValue()
			s1 = vm.popValue()
			s0 = vm.popValue()
		default:
			s3 = vm.popValue()
			s2 = vm.popValue()
			s1 = vm.popValue()
			s0 = vm.popValue()
			vm.logf(".", "read %v %v %v %v", s0, s1, s2, s3)
		}
		if vm.except.raised() {
			return
		}
		vm.logf(".", "[%v] %s", len(vm.vs), opcodes[operand].name)

		switch operand {
		case opNop:

		case opDrop:

		case opDup:
			vm.pushValue(s0)
			vm.pushValue(s0)

		case opRevReadVS:
			if s0 >= uint32(len(vm.vs)) {
				vm.except.vsUF = true
				return
			}
			vm.pushValue(vm.vs[uint32(len(vm.vs))-s0-1])

		case opU32Add:
			vm.pushValue(s0 + s1)
		case opU32Sub:
			vm.pushValue(s0 - s1)
		case opU32Mul:
			vm.pushValue(s0 * s1)
		case opU32Div:
			if s1 == 0 {
				vm.except.divZero = true
				return
			}
			vm.pushValue(s0 / s1)
		case opU32Mod:
			if s1 == 0 {
				vm.except.divZero = true
				return
			}
			vm.pushValue(s0 % s1)

		case opU32And:
			vm.pushValue(s0 & s1)
		case opU32Or:
			vm.pushValue(s0 | s1)
		case opU32Xor:
			vm.pushValue(s0 ^ s1)
		case opU32Inv:
			vm.pushValue(^s0)

		case opU32Shl:
			vm.pushValue(s0 << (s1 & 31))
		case opU32Shr:
			vm.pushValue(s0 >> (s1 & 31))

		case opU32Eq:
			vm.pushValue(boolU32(s0 == s1))
		case opU32Neq:
			vm.pushValue(boolU32(s0 != s1))
		case opU32Geq:
			vm.pushValue(boolU32(s0 >= s1))
		case opU32Leq:
			vm.pushValue(boolU32(s0 <= s1))
		case opU32Gt:
			vm.pushValue(boolU32(s0 > s1))
		case opU32Lt:
			vm.pushValue(boolU32(s0 < s1))

		case opCond:
			if !isTail {
				vm.pushReturn()
			}
			if s0 != 0 {
				vm.fp = s1
			} else {
				vm.fp = s2
			}
			vm.ip = 0

		case opCallInd:
			// indirect call; the caller arranges the return frame
			vm.fp = s0
			vm.ip = 0

		case opPushLocal:
			vm.pushLocal(s0)
		case opReadLocal:
			vm.pushValue(vm.localValue(s0))

		case opYield:
			vm.except.yield = true
		}
		return
	}

	if fn.kind == funcNative {
		vm.logf(".", "[%v] <%s>", len(vm.vs), vm.constString(fn.nameOffset))
		fn.native(vm)
		return
	}

	if !isTail {
		vm.logf(".", "[%v] call [%v] %s", len(vm.vs), len(vm.rs), vm.constString(fn.nameOffset))
		vm.pushReturn()
	} else {
		vm.logf(".", "[%v] tail [%v] %s", len(vm.vs), len(vm.rs), vm.constString(fn.nameOffset))
	}
	vm.fp = operand
	vm.ip = 0
}

// next performs one fetch/execute step.
func (vm *VM) next() {
	vm.fetch()
	if vm.except.raised() {
		return
	}
	vm.execute()
}

// runWord drives word to completion: it records the current return depth,
// pushes a sentinel frame, seeds a synthetic tail call, and steps until the
// return stack drops back to the recorded depth. A raised exception flag
// stops stepping with the flag left for the caller; yield suspends, leaving
// the continuation frames for resume.
func (vm *VM) runWord(word uint32) {
	depth := len(vm.rs)
	vm.fp, vm.ip = 0, 0
	vm.pushReturn()
	if vm.except.raised() {
		return
	}
	vm.setTailCall(word)
	vm.execute()
	vm.stepToDepth(depth)
}

// resume continues a computation suspended by yield.
func (vm *VM) resume() {
	if !vm.susp.ok {
		return
	}
	depth := vm.susp.depth
	vm.susp = suspension{}
	vm.stepToDepth(depth)
}

func (vm *VM) stepToDepth(depth int) {
	for !vm.quit && len(vm.rs) > depth {
		if vm.except.raised() {
			return
		}
		if vm.except.yield {
			vm.except.yield = false
			vm.susp = suspension{depth: depth, ok: true}
			return
		}
		if vm.ctx != nil {
			vm.haltif(vm.ctx.Err())
		}
		vm.next()
	}
}
