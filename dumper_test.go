package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDumper_sections(t *testing.T) {
	vm := New()
	vm.pushValue(7)
	vm.pushString("hi")
	defineTestWord(vm, "two", 2, opCall|opDup)

	var out strings.Builder
	vmDumper{vm: vm, out: &out}.dump()
	dump := out.String()

	assert.Contains(t, dump, "# VM Dump")
	assert.Contains(t, dump, "stack: [7 0]", "expected the string offset under the literal")
	assert.Contains(t, dump, "# Strings")
	assert.Contains(t, dump, `@0 "hi"`)
	assert.Contains(t, dump, "# Dictionary")
	assert.Contains(t, dump, "0: nop <opcode>")
	assert.Contains(t, dump, "two @")
	assert.Contains(t, dump, "\t2\n\tvs.dup\n")
}

func TestDumper_disasmUnknownCall(t *testing.T) {
	vm := New()

	var out strings.Builder
	vm.disasmOpcode(&out, opCall|0x7FFFFFF0)
	assert.Equal(t, "\tcall(2147483632)\n", out.String())
}
