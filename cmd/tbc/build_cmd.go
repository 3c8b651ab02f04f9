package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c3lang/tilde-backend/tb"
	"github.com/c3lang/tilde-backend/tb/object"
	"github.com/c3lang/tilde-backend/tb/opt"
)

func newBuildCmd() *cobra.Command {
	var system, optStr, out string
	var threads int
	var features []string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the built-in sum_to demo module to a relocatable object file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := parseSystem(system)
			if err != nil {
				return err
			}
			level, err := parseOptLevel(optStr)
			if err != nil {
				return err
			}

			fs := tb.NewFeatureSet()
			for _, name := range features {
				fs.Set(name, true)
			}

			m := buildSumLoop(sys, fs)
			optimizer := defaultOptimizer{passes: opt.Default}
			if errs := m.Compile(level, optimizer, x64Backend{}, threads); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
				return fmt.Errorf("tbc: build: %d function(s) failed to compile", len(errs))
			}

			data, err := m.Export(func(m *tb.Module) []byte {
				img := object.BuildImage(m)
				if sys == tb.SystemWindows {
					return object.WriteCOFF64(m, img)
				}
				return object.WriteELF64Rel(m, img)
			})
			if err != nil {
				return err
			}

			if out == "" {
				out = "sum_to.o"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("tbc: build: writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "linux", "target system (linux, windows, macos)")
	cmd.Flags().StringVar(&optStr, "opt", "1", "optimisation level (0 or 1)")
	cmd.Flags().StringVar(&out, "out", "", "output object file path (default sum_to.o)")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker count for Module.Compile (0 means runtime.NumCPU)")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "enable a target CPU feature by name (repeatable)")
	return cmd
}
