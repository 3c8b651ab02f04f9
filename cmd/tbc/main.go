// Command tbc is a small driver over the tb package: build a demo
// module, dump its IR/assembly at each pipeline stage, or compile and
// export a module to a relocatable object file. It exists to exercise
// the library end-to-end, not as a production toolchain front-end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/opt"
	"github.com/c3lang/tilde-backend/tb/x64"
)

// x64Backend adapts x64.Generate's concrete *x64.Output return to the
// tb.Backend interface, which core declares without importing tb/x64.
type x64Backend struct{}

func (x64Backend) Generate(f *tb.Function, functionID int) tb.FunctionOutput {
	return x64.Generate(f, functionID)
}

// defaultOptimizer adapts opt.Run's (f, passes) shape to tb.Optimizer.
type defaultOptimizer struct{ passes []opt.Pass }

func (o defaultOptimizer) Run(f *tb.Function) { opt.Run(f, o.passes) }

func main() {
	rootCmd := &cobra.Command{
		Use:   "tbc",
		Short: "Driver for the tilde-backend IR, optimiser and x64 code generator",
	}

	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newDemoCmd())
	rootCmd.AddCommand(newDumpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseSystem(s string) (tb.System, error) {
	switch s {
	case "linux":
		return tb.SystemLinux, nil
	case "windows":
		return tb.SystemWindows, nil
	case "macos", "darwin":
		return tb.SystemMacOS, nil
	default:
		return 0, fmt.Errorf("unknown --system %q (want linux, windows, macos)", s)
	}
}

func parseOptLevel(s string) (tb.OptLevel, error) {
	switch s {
	case "0", "O0":
		return tb.O0, nil
	case "1", "O1":
		return tb.O1, nil
	default:
		return 0, fmt.Errorf("unknown --opt %q (want 0 or 1)", s)
	}
}
