package main

import "fmt"

// compiling reports whether at least one definition is open. In compile mode
// the REPL defers words into the scratch buffer instead of running them.
func (vm *VM) compiling() bool {
	return len(vm.comp.frames) > 0
}

// pushInstruction appends an opcode to the instruction heap.
func (vm *VM) pushInstruction(opcode uint32) {
	if uint32(len(vm.ins)) >= vm.insCap {
		vm.except.insOF = true
		return
	}
	vm.ins = append(vm.ins, opcode)
}

// pushCompilerInstruction appends an opcode to the scratch buffer of the
// innermost open definition.
func (vm *VM) pushCompilerInstruction(opcode uint32) {
	if uint32(len(vm.comp.cis)) >= vm.comp.cisCap {
		vm.except.cisOF = true
		return
	}
	vm.comp.cis = append(vm.comp.cis, opcode)
}

func (vm *VM) pushCompileFrame(funcID uint32) {
	if uint32(len(vm.comp.frames)) >= vm.comp.frameCap {
		vm.except.cfOF = true
		return
	}
	vm.comp.frames = append(vm.comp.frames, compileEntry{
		funcID:  funcID,
		ciStart: uint32(len(vm.comp.cis)),
	})
}

// startFuncCompilation implements `:`: read the name token, allocate an
// interpreted entry, and open a definition for it.
func (vm *VM) startFuncCompilation() {
	token, _ := vm.readToken()
	vm.pushCompileFrame(vm.allocateInterpFunction(token))
}

// startMacroCompilation implements `!`: like `:` but the new word is
// immediate, so it runs during later compilations instead of being compiled.
func (vm *VM) startMacroCompilation() {
	token, _ := vm.readToken()
	funcID := vm.allocateInterpFunction(token)
	if vm.except.raised() {
		return
	}
	vm.setImmediate(funcID)
	vm.pushCompileFrame(funcID)
}

// finishFuncCompilation implements `;`: copy the innermost definition's
// scratch range into the instruction heap, patch the entry's body, and pop
// the frame.
func (vm *VM) finishFuncCompilation() {
	top := len(vm.comp.frames) - 1
	if top < 0 {
		vm.reportf("unexpected ;")
		return
	}
	entry := vm.comp.frames[top]

	vm.logf(":", "finish %s (%v)", vm.funcName(entry.funcID), entry.funcID)

	insOffset := uint32(len(vm.ins))
	var insCount uint32
	for _, opcode := range vm.comp.cis[entry.ciStart:] {
		vm.pushInstruction(opcode)
		if vm.except.raised() {
			return
		}
		insCount++
	}

	vm.comp.cis = vm.comp.cis[:entry.ciStart]
	vm.comp.frames = vm.comp.frames[:top]
	if entry.funcID < uint32(len(vm.funcs)) {
		vm.funcs[entry.funcID].insOffset = insOffset
		vm.funcs[entry.funcID].insCount = insCount
	}
}

// startLambda implements `{`: open a definition under a synthesized name.
func (vm *VM) startLambda() {
	name := fmt.Sprintf("lambda#%d", len(vm.ins))
	vm.pushCompileFrame(vm.allocateInterpFunction(name))
}

// endLambda implements `}`: close the definition like `;`, then emit the new
// function's index — as a literal opcode when an outer definition is still
// open, as a value otherwise.
func (vm *VM) endLambda() {
	top := len(vm.comp.frames) - 1
	if top < 0 {
		vm.reportf("unexpected }")
		return
	}
	funcID := vm.comp.frames[top].funcID

	vm.finishFuncCompilation()
	if vm.except.raised() {
		return
	}
	if vm.compiling() {
		vm.pushCompilerInstruction(funcID)
	} else {
		vm.pushValue(funcID)
	}
}
