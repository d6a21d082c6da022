// Package main: nCVM -- a nano concatenative virtual machine.
//
// nCVM is an interactive interpreter in the Forth family. It reads
// whitespace-delimited words from the top of a stream stack and either runs
// them against an operand stack or, while a definition is open, appends them
// to that definition's body.
//
// Programs are a flat table of 32-bit opcodes. Bit 31 clear pushes the low 31
// bits as a literal; bit 31 set calls the dictionary entry named by the low
// 31 bits. The first few dictionary slots are hardware opcodes, dispatched
// inline by the execute loop:
//
//	nop  vs.drop  vs.dup  vs.rev.read
//	u32.add u32.sub u32.mul u32.div u32.mod
//	u32.and u32.or u32.xor u32.not u32.shl u32.shr
//	u32.eq u32.neq u32.geq u32.leq u32.gt u32.lt
//	cond  call  ls.push  ls.read  yield
//
// Everything above them is either a native word (a Go callback) or an
// interpreted word (an offset and count into the instruction heap). The
// interpreter is a classic threaded inner loop: fetch one opcode, execute it,
// repeat until the return stack unwinds past the sentinel the driver pushed.
// The fetch step detects tail position, so self-calls and cond branches in
// tail position never grow the return stack:
//
//	: loop ... loop ;      runs in constant return-stack space
//
// Definitions are built by immediate words. `:` opens a named definition and
// `;` closes it; `!` opens an immediate (macro) definition; `{` ... `}`
// builds an anonymous word and leaves its index behind, which pairs with
// cond:
//
//	: fact dup 1 u32.gt { dup 1 u32.sub fact u32.mul } { vs.drop 1 } cond ;
//
// `"` reads a string onto the string stack, `//` comments to end of line,
// `@` takes the address of a word, `load` runs a file, `see` disassembles,
// and `quit` leaves the repl.
//
// The machine itself is a single record (VM) owning fixed-capacity segments:
// the dictionary, instruction heap and constant chars, the value, local,
// return and string stacks, the stream stack, and the compiler scratch
// state. Overflowing any of them raises an exception flag that aborts the
// current top-level execution back to the prompt. Dictionary entries,
// instructions and constant chars are never freed or moved; the string
// stack reclaims its arena LIFO.
package main
