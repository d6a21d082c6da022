package main

import (
	"io"

	"github.com/ncvm-io/ncvm/internal/flushio"
)

// VMOption configures a VM under construction.
type VMOption interface{ apply(vm *VM) }

// WithParams replaces the segment capacities; it must precede other options.
func WithParams(p Params) VMOption { return paramsOption(p) }

// WithInput queues a reader for the top-level repl; queued inputs run in
// order. The reader may implement Name() for diagnostics.
func WithInput(r io.Reader) VMOption { return inputOption{r} }

// WithInputWriter queues the read side of a pipe that w writes into, for
// kernels that generate their own source.
func WithInputWriter(w io.WriterTo) VMOption { return newPipeInput(w) }

// WithOutput directs normal output (prompts, .i, lsws, see).
func WithOutput(w io.Writer) VMOption { return outputOption{w} }

// WithErrorOutput directs diagnostics (word-not-found, aborted executions).
func WithErrorOutput(w io.Writer) VMOption { return errOutputOption{w} }

// WithTee copies normal output to an additional writer.
func WithTee(w io.Writer) VMOption { return teeOption{w} }

// WithPrompt makes the top-level repl print "> " on newlines.
func WithPrompt(on bool) VMOption { return promptOption(on) }

// WithBootstrap names a script loaded (prompt-less, like the load word)
// before the first queued input; may be given more than once.
func WithBootstrap(path string) VMOption { return bootstrapOption(path) }

// WithLogf enables step tracing through the given printf-style function.
func WithLogf(logfn func(mess string, args ...interface{})) VMOption { return withLogfn(logfn) }

var defaultOptions = VMOptions(
	WithOutput(io.Discard),
	WithErrorOutput(io.Discard),
)

// VMOptions flattens any number of options into one.
func VMOptions(opts ...VMOption) VMOption {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(vm *VM) {}

type options []VMOption

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

type paramsOption Params

func (p paramsOption) apply(vm *VM) { vm.setCaps(Params(p)) }

type inputOption struct{ io.Reader }

func (i inputOption) apply(vm *VM) {
	vm.queue = append(vm.queue, i.Reader)
}

type outputOption struct{ io.Writer }

func (o outputOption) apply(vm *VM) {
	if vm.out != nil {
		vm.out.Flush()
	}
	vm.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

type errOutputOption struct{ io.Writer }

func (o errOutputOption) apply(vm *VM) {
	if vm.errOut != nil {
		vm.errOut.Flush()
	}
	vm.errOut = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

type teeOption struct{ io.Writer }

func (o teeOption) apply(vm *VM) {
	vm.out = flushio.WriteFlushers(vm.out, flushio.NewWriteFlusher(o.Writer))
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

type promptOption bool

func (p promptOption) apply(vm *VM) { vm.prompt = bool(p) }

type bootstrapOption string

func (b bootstrapOption) apply(vm *VM) { vm.loads = append(vm.loads, string(b)) }

type withLogfn func(mess string, args ...interface{})

func (logfn withLogfn) apply(vm *VM) { vm.logfn = logfn }

func newPipeInput(wto io.WriterTo) pipeInput {
	r, w := io.Pipe()
	go func() {
		defer w.Close()
		wto.WriteTo(w)
	}()
	return pipeInput{r, nameOf(wto)}
}

type pipeInput struct {
	*io.PipeReader
	name string
}

func (pi pipeInput) Name() string { return pi.name }

func (pi pipeInput) apply(vm *VM) {
	vm.queue = append(vm.queue, pi)
	vm.closers = append(vm.closers, pi)
}
