// File: cmd/resolve.go
package cmd

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/vision-assistant/internal/observability"
)

func newResolveCmd(opts *options) *cobra.Command {
	var emrSystem string

	cmd := &cobra.Command{
		Use:   "resolve <page>",
		Short: "Scroll through a page and print where each field template was found",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			a, err := newApp(opts.cfg, emrSystem, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			armAbort(ctx, cancel, logger)

			coords, err := a.assistant.ResolvePage(ctx, args[0])
			if err != nil {
				return err
			}

			names := make([]string, 0, len(coords))
			for name := range coords {
				names = append(names, name)
			}
			slices.Sort(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tSCROLL\tX\tY")
			for _, name := range names {
				c := coords[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, c.ScrollOffset, c.X, c.Y)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d field(s) resolved on %s\n", len(names), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&emrSystem, "emr", "", "EMR system to drive (default from templates.default_emr)")
	return cmd
}
