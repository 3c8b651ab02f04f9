package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/opt"
	"github.com/c3lang/tilde-backend/tb/x64"
)

func newDumpCmd() *cobra.Command {
	var system, optStr string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the demo module's IR before and after optimisation, plus generated code",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := parseSystem(system)
			if err != nil {
				return err
			}
			level, err := parseOptLevel(optStr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			m := buildSumLoop(sys, tb.NewFeatureSet())
			for id, f := range m.Functions {
				if errs := tb.Validate(f); len(errs) > 0 {
					for _, e := range errs {
						fmt.Fprintln(cmd.ErrOrStderr(), e)
					}
					return fmt.Errorf("tbc: dump: %s failed validation before optimisation", f.Name)
				}

				fmt.Fprintf(out, "=== %s (before optimisation) ===\n%s\n", f.Name, f.String())

				if level != tb.O0 {
					sweeps := opt.Run(f, opt.Default)
					if errs := tb.Validate(f); len(errs) > 0 {
						for _, e := range errs {
							fmt.Fprintln(cmd.ErrOrStderr(), e)
						}
						return fmt.Errorf("tbc: dump: %s failed validation after optimisation", f.Name)
					}
					fmt.Fprintf(out, "=== %s (after optimisation, %d sweep(s)) ===\n%s\n", f.Name, sweeps, f.String())
				}

				output := x64.Generate(f, id)
				fmt.Fprintf(out, "=== %s (x64, %d bytes, %d stack, callee-saved mask %#x) ===\n%s\n\n",
					f.Name, len(output.CodeBytes()), output.StackUsage(), output.CalleeSavedMask(),
					hex.EncodeToString(output.CodeBytes()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "linux", "target system (linux, windows, macos)")
	cmd.Flags().StringVar(&optStr, "opt", "1", "optimisation level (0 or 1)")
	return cmd
}
