package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c3lang/tilde-backend/tb"
)

func newDemoCmd() *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Print the IR for the built-in sum_to demo function",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := parseSystem(system)
			if err != nil {
				return err
			}
			m := buildSumLoop(sys, tb.NewFeatureSet())
			for _, f := range m.Functions {
				if errs := tb.Validate(f); len(errs) > 0 {
					for _, e := range errs {
						fmt.Fprintln(cmd.ErrOrStderr(), e)
					}
					return fmt.Errorf("tbc: demo module failed validation")
				}
				fmt.Fprint(cmd.OutOrStdout(), f.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "linux", "target system (linux, windows, macos)")
	return cmd
}
