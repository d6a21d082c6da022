package main

import (
	"context"
	"errors"
	"io"

	"github.com/ncvm-io/ncvm/internal/panicerr"
)

// New builds a VM with the reference capacities, the hardware opcodes and
// standard words registered, and any options applied. Options that change
// capacities (WithParams) must come before input options.
func New(opts ...VMOption) *VM {
	var vm VM
	vm.setCaps(DefaultParams())
	defaultOptions.apply(&vm)
	VMOptions(opts...).apply(&vm)
	vm.registerDict()
	return &vm
}

// Run loads the bootstrap script, if any, then runs the read-eval-print loop
// over each queued input in turn. It returns nil on a clean quit or
// end-of-input; context and io failures come back as errors.
func (vm *VM) Run(ctx context.Context) error {
	err := panicerr.Recover("VM", func() error {
		return vm.run(ctx)
	})
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var he vmHaltError
	if errors.As(err, &he) {
		err = he.error
	}
	return err
}

func (vm *VM) run(ctx context.Context) error {
	vm.registerDict()
	vm.ctx = ctx
	defer func() { vm.ctx = nil }()

	for _, path := range vm.loads {
		if vm.quit {
			break
		}
		vm.Load(path)
	}
	for _, r := range vm.queue {
		if vm.quit {
			break
		}
		vm.runStream(ReaderStream(r), vm.prompt)
	}
	vm.queue = nil
	if vm.out != nil {
		return vm.out.Flush()
	}
	return nil
}

// runStream runs a repl invocation over strm: push, seed the prompt flag,
// loop to end-of-stream, pop.
func (vm *VM) runStream(strm *Stream, prompt bool) {
	vm.pushStream(strm)
	if vm.except.raised() {
		return
	}
	vm.pushValue(boolU32(prompt))
	vm.repl()
	vm.popStream()
}

// Close releases everything the options opened, newest first.
func (vm *VM) Close() (err error) {
	for i := len(vm.closers) - 1; i >= 0; i-- {
		if cerr := vm.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NamedReader gives r a name for stream diagnostics.
func NamedReader(name string, r io.Reader) io.Reader {
	return readerName{r, name}
}

type readerName struct {
	io.Reader
	name string
}

func (nr readerName) Name() string { return nr.name }
