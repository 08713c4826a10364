package cli

import (
	"fmt"
	"io"

	"agora/internal/repository"

	"github.com/spf13/cobra"
)

type reconcileReport struct {
	Drift []repository.CounterDrift `yaml:"drift"`
	Fixed int                       `yaml:"fixed"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare denormalized counters with their source rows",
		Long: `Recompute like, vote, comment and post counters from engagement edges
and child rows and report every mismatch. With --fix, drifted counters are
overwritten unless a concurrent write changed them since the scan.

Exits 1 when drift remains.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := rootOpts.connect()
			if err != nil {
				return err
			}
			defer closeDB(db)

			reconciler := repository.NewReconciler(db)
			drift, err := reconciler.FindDrift(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "find drift", err)
			}

			report := reconcileReport{Drift: drift}
			if fix && len(drift) > 0 {
				report.Fixed, err = reconciler.Fix(cmd.Context(), drift)
				if err != nil {
					return WrapExitError(ExitFailure, "fix drift", err)
				}
			}

			if err := emit(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) {
				if len(drift) == 0 {
					_, _ = fmt.Fprintln(w, "counters consistent")
					return
				}
				for _, d := range drift {
					_, _ = fmt.Fprintln(w, d.String())
				}
				if fix {
					_, _ = fmt.Fprintf(w, "fixed %d of %d\n", report.Fixed, len(drift))
				}
			}); err != nil {
				return err
			}

			if remaining := len(drift) - report.Fixed; remaining > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d counters drifted", remaining))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "overwrite drifted counters with recomputed values")
	return cmd
}
