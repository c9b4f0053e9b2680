package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/fngen/autodiff"
)

func derivatives(jac, hess bool) autodiff.DerivativeSet {
	var d autodiff.DerivativeSet
	if jac {
		d |= autodiff.Jacobian
	}
	if hess {
		d |= autodiff.Hessian
	}
	return d
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cached artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ms, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVARS\tPARAMS\tOUTPUTS\tDERIVATIVES\tINSTRUCTIONS\tCREATED")
			for _, m := range ms {
				total := 0
				for _, n := range m.Instructions {
					total += n
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%d\t%s\n",
					m.Name, m.Signature.VariableSize, m.Signature.ParameterSize, m.OutputSize,
					derivatives(m.Signature.Jacobian, m.Signature.Hessian), total,
					m.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print the manifest of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.store.Stat(args[0])
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(m)
			if err != nil {
				return err
			}
			_, err = a.out.Write(b)
			return err
		},
	}
}

func (a *app) sourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "source NAME",
		Short: "Print the generated Go source of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.store.Source(args[0])
			if err != nil {
				return err
			}
			_, err = a.out.Write(src)
			return err
		},
	}
}

func (a *app) evalCmd() *cobra.Command {
	var (
		input    []float64
		jacobian bool
		hessian  bool
	)
	cmd := &cobra.Command{
		Use:   "eval NAME --input v1,v2,...",
		Short: "Load an artifact and evaluate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := autodiff.NewFactory(autodiff.WithStore(a.store), autodiff.WithLogger(a.logger))
			if err != nil {
				return err
			}
			fn, err := f.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			y, err := fn.Evaluate(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "value: %v\n", y)

			if jacobian {
				j, err := fn.Jacobian(input)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "jacobian:\n%v", j)
			}
			if hessian {
				hs, err := fn.Hessians(input)
				if err != nil {
					return err
				}
				for k, h := range hs {
					fmt.Fprintf(a.out, "hessian[%d]:\n%v", k, h)
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&input, "input", nil, "input vector, variables then parameters")
	cmd.Flags().BoolVar(&jacobian, "jacobian", false, "also print the Jacobian")
	cmd.Flags().BoolVar(&hessian, "hessian", false, "also print the Hessian of every output")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove cached artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sort.Strings(args)
			for _, name := range args {
				if err := a.store.Remove(name); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed %s\n", name)
			}
			return nil
		},
	}
}

func (a *app) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove every cached artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.store.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %d artifacts from %s\n", n, a.store.Root())
			return nil
		},
	}
}
