package main

import (
	"fmt"
	"strings"
)

const maxTokenSize = 1023

// Token whitespace: space, tab, newline, carriage return, bell.
func isTokenSpace(ch uint32) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\a':
		return true
	}
	return false
}

func isDigits(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return false
		}
	}
	return true
}

// tokToU32 parses a digit string base-10 with 32-bit wrap.
func tokToU32(token string) uint32 {
	var value uint32
	for i := 0; i < len(token); i++ {
		value = value*10 + uint32(token[i]-'0')
	}
	return value
}

// readChar reads one byte from the top stream, flushing pending output first
// so prompts and results appear before the read blocks.
func (vm *VM) readChar() uint32 {
	if vm.out != nil {
		vm.haltif(vm.out.Flush())
	}
	if vm.errOut != nil {
		vm.haltif(vm.errOut.Flush())
	}
	strm := vm.topStream()
	if strm == nil {
		return 0
	}
	return strm.ReadChar()
}

// readToken reads a maximal run of non-whitespace bytes from the top stream
// and the byte that terminated it.
func (vm *VM) readToken() (string, byte) {
	strm := vm.topStream()
	if strm == nil {
		return "", 0
	}
	var sb strings.Builder
	var ch uint32
	for sb.Len() < maxTokenSize {
		ch = vm.readChar()
		if isTokenSpace(ch) || strm.IsEOS() {
			break
		}
		sb.WriteByte(byte(ch))
	}
	token := sb.String()
	vm.logf(">", "scan %q <- %v", token, strm.Name())
	return token, byte(ch)
}

// reportf writes a diagnostic to the error stream; the REPL carries on.
func (vm *VM) reportf(mess string, args ...interface{}) {
	if vm.errOut == nil {
		return
	}
	fmt.Fprintf(vm.errOut, "error: "+mess+"\n", args...)
	vm.errOut.Flush()
}

func (vm *VM) writePrompt() {
	if vm.out != nil {
		fmt.Fprint(vm.out, "\n> ")
	}
}

// repl reads tokens off the top stream and drives each to completion before
// reading the next. The popped argument says whether to print prompts on
// newlines (off during load). The loop ends at end-of-stream or quit.
func (vm *VM) repl() {
	prompt := vm.popValue() != 0
	if vm.except.raised() {
		return
	}
	if prompt {
		vm.writePrompt()
	}
	for !vm.quit {
		if vm.ctx != nil {
			vm.haltif(vm.ctx.Err())
		}
		strm := vm.topStream()
		if strm == nil {
			return
		}
		token, term := vm.readToken()
		eos := strm.IsEOS()
		if token == "" {
			if eos {
				return
			}
			continue
		}
		vm.eval(token)
		if term == '\n' && prompt {
			vm.writePrompt()
		}
		if eos {
			return
		}
	}
}

// eval dispatches one token: a known word is deferred or run per the compile
// state and its immediacy, a digit string becomes a literal, anything else is
// a lookup error. A raised exception flag unwinds to the state at entry.
func (vm *VM) eval(token string) {
	var (
		rsMark  = len(vm.rs)
		cfMark  = len(vm.comp.frames)
		cisMark = len(vm.comp.cis)
		lpMark  = vm.lp
	)

	switch fidx, ok := vm.findFunction(token); {
	case ok:
		if vm.compiling() && !vm.funcs[fidx].immediate {
			vm.pushCompilerInstruction(opCall | fidx)
		} else {
			vm.runWord(fidx)
		}
	case isDigits(token):
		value := tokToU32(token)
		if vm.compiling() {
			vm.pushCompilerInstruction(opCallMask & value)
		} else {
			vm.pushValue(value)
		}
	default:
		vm.reportf("word %s not found", token)
	}

	if vm.except.raised() {
		vm.abortTo(rsMark, cfMark, cisMark, lpMark)
	}
}

// abortTo reports the raised exception and unwinds the return stack and any
// partially built compile state back to the marks taken at token entry;
// definitions already open before the token survive.
func (vm *VM) abortTo(rsMark, cfMark, cisMark int, lpMark uint32) {
	vm.reportf("%v", vm.except.err())
	if len(vm.rs) > rsMark {
		vm.rs = vm.rs[:rsMark]
	}
	if len(vm.comp.frames) > cfMark {
		vm.comp.frames = vm.comp.frames[:cfMark]
	}
	if len(vm.comp.cis) > cisMark {
		vm.comp.cis = vm.comp.cis[:cisMark]
	}
	vm.lp = lpMark
	vm.susp = suspension{}
	vm.except.clear()
	vm.except.yield = false
}

//// std words

func (vm *VM) printInt() {
	v := vm.popValue()
	if vm.except.raised() {
		return
	}
	fmt.Fprintf(vm.out, "%d", v)
}

func (vm *VM) listWords() {
	for fidx := range vm.funcs {
		f := &vm.funcs[fidx]
		fmt.Fprintf(vm.out, "%d - %s : %d : %d\n",
			fidx, vm.constString(f.nameOffset), int32(f.inVS), int32(f.outVS))
	}
}

func (vm *VM) listValues() {
	for i, v := range vm.vs {
		fmt.Fprintf(vm.out, "[%d] - 0x%08X\n", i, v)
	}
}

func (vm *VM) seeWord() {
	token, _ := vm.readToken()
	fidx, ok := vm.findFunction(token)
	if !ok {
		vm.reportf("word %s doesn't exist", token)
		return
	}
	f := &vm.funcs[fidx]
	fmt.Fprintf(vm.out, "%d - %s:\n", fidx, vm.constString(f.nameOffset))
	switch f.kind {
	case funcNative:
		fmt.Fprintf(vm.out, "\t<native>\n")
	case funcInterp:
		for i := uint32(0); i < f.insCount; i++ {
			vm.disasmOpcode(vm.out, vm.ins[f.insOffset+i])
		}
	}
}

// readString implements `"`: consume bytes up to the closing quote, record
// them on the string stack, and push the new string's arena offset.
func (vm *VM) readString() {
	strm := vm.topStream()
	if strm == nil {
		return
	}
	var sb strings.Builder
	for {
		ch := vm.readChar()
		if strm.IsEOS() {
			vm.reportf("unterminated string")
			break
		}
		if ch == '"' {
			break
		}
		sb.WriteByte(byte(ch))
	}
	vm.pushString(sb.String())
}

// readCommentLine implements `//`: discard the rest of the line.
func (vm *VM) readCommentLine() {
	strm := vm.topStream()
	if strm == nil {
		return
	}
	for {
		ch := vm.readChar()
		if ch == '\n' || ch == '\a' || strm.IsEOS() {
			return
		}
	}
}

// wordAddress implements `@`: resolve the next token to a dictionary index
// and emit it as a literal (compiled or pushed per the compile state).
func (vm *VM) wordAddress() {
	token, _ := vm.readToken()
	fidx, ok := vm.findFunction(token)
	if !ok {
		vm.reportf("word %s not found", token)
		return
	}
	if vm.compiling() {
		vm.pushCompilerInstruction(fidx)
	} else {
		vm.pushValue(fidx)
	}
}

// loadWord pops a string-arena offset naming a file, pushes it as the active
// stream, and runs a nested prompt-less repl over it.
func (vm *VM) loadWord() {
	off := vm.popValue()
	if vm.except.raised() {
		return
	}
	path := vm.stackString(off)
	strm, err := OpenFileStream(path, StreamRead)
	if err != nil {
		vm.reportf("cannot open %s", path)
		vm.popString()
		return
	}
	vm.pushStream(strm)
	vm.pushValue(0)
	vm.repl()
	vm.popStream()
	vm.popString()
}

// Load runs the named file through a nested repl, as the load word does.
func (vm *VM) Load(path string) {
	vm.pushString(path)
	vm.loadWord()
}

func (vm *VM) quitWord() {
	vm.quit = true
}

var stdWords = []struct {
	name      string
	immediate bool
	fn        nativeFunc
	inVS      uint32
	outVS     uint32
}{
	{"repl", false, (*VM).repl, allValues, allValues},

	{":", true, (*VM).startFuncCompilation, allValues, allValues},
	{"!", true, (*VM).startMacroCompilation, allValues, allValues},
	{";", true, (*VM).finishFuncCompilation, allValues, allValues},
	{"\"", true, (*VM).readString, allValues, allValues},
	{"//", true, (*VM).readCommentLine, 0, 0},
	{"@", true, (*VM).wordAddress, allValues, allValues},
	{"{", true, (*VM).startLambda, allValues, allValues},
	{"}", true, (*VM).endLambda, allValues, allValues},

	{".i", false, (*VM).printInt, 1, 0},
	{"lsws", false, (*VM).listWords, 0, 0},
	{"lsvs", false, (*VM).listValues, 0, 0},
	{"see", false, (*VM).seeWord, 1, 0},

	{"load", false, (*VM).loadWord, 1, 0},

	{"quit", false, (*VM).quitWord, 0, 0},
}

func registerStdWords(vm *VM) {
	for _, w := range stdWords {
		vm.addNativeFunction(w.name, w.immediate, w.fn, w.inVS, w.outVS)
	}
}
