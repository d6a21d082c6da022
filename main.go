package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/ncvm-io/ncvm/internal/logio"
)

const binName = "ncvm"

var (
	// placeholder values, replaced on build
	version   = "{v}"
	buildDate = "{d}"
)

var usage = fmt.Sprintf(`usage: %s [<option>...] [<script>...]
       %[1]s -h|--help
       %[1]s -v|--version

nano concatenative VM "nCVM": an interactive Forth-family interpreter.

Script files are loaded in order, then the repl reads standard input. A
bootstrap.ncvm in the working directory is loaded first when present.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -e --eval <text>          Evaluate <text> before reading stdin.
       --bootstrap <path>        Load <path> instead of bootstrap.ncvm.
       --trace                   Log every interpreter step to stderr.
       --dump                    Print a VM dump after execution.

Segment capacities come from NCVM_MAX_* environment variables; see the
repository README for the full list and defaults.
`, binName)

type Cmd struct {
	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Trace bool `flag:"trace"`
	Dump  bool `flag:"dump"`

	Eval      string `flag:"e,eval"`
	Bootstrap string `flag:"bootstrap"`

	args []string
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) Validate() error {
	if c.Bootstrap != "" {
		if _, err := os.Stat(c.Bootstrap); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, usage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, usage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, version, buildDate)
		return mainer.Success
	}

	params, err := ParamsFromEnv()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid environment: %s\n", err)
		return mainer.InvalidArgs
	}

	log := logio.Logger{}
	log.SetOutput(nopWriteCloser{stdio.Stderr})

	fmt.Fprintf(stdio.Stdout, "nano concatenative VM %q %s\n", "nCVM", version)

	opts := []VMOption{
		WithParams(params),
		WithOutput(stdio.Stdout),
		WithErrorOutput(stdio.Stderr),
		WithPrompt(true),
	}

	switch bootstrap := c.Bootstrap; {
	case bootstrap != "":
		opts = append(opts, WithBootstrap(bootstrap))
	default:
		if _, err := os.Stat("bootstrap.ncvm"); err == nil {
			opts = append(opts, WithBootstrap("bootstrap.ncvm"))
		}
	}
	for _, path := range c.args {
		opts = append(opts, WithBootstrap(path))
	}

	if c.Trace {
		opts = append(opts, WithLogf(log.Leveledf("TRACE")))
	}
	if c.Eval != "" {
		opts = append(opts, WithInput(NamedReader("<eval>", strings.NewReader(c.Eval))))
	}
	opts = append(opts, WithInput(stdio.Stdin))

	vm := New(opts...)
	defer vm.Close()

	if c.Dump {
		lw := &logio.Writer{Logf: log.Leveledf("DUMP")}
		defer lw.Close()
		defer vmDumper{vm: vm, out: lw}.dump()
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	log.ErrorIf(vm.Run(ctx))

	if log.ExitCode() != 0 {
		return mainer.Failure
	}
	return mainer.Success
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func main() {
	var c Cmd
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
