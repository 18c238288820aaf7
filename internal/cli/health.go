package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		Long: `Report whether the queue database exists and answers queries, the
number of rows in each queue table, and the result of an integrity check.

Exits with code 1 when the integrity check fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			h, err := q.Health(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "health check failed", err)
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				if err := f.Success(h); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "database:  %s (%s)\n", h.Path, h.Driver)
				fmt.Fprintf(w, "readable:  %t\n", h.Readable)
				fmt.Fprintf(w, "integrity: %s\n", okString(h.IntegrityCheck))
				names := make([]string, 0, len(h.Tables))
				for name := range h.Tables {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "table %-12s %d rows\n", name, h.Tables[name])
				}
				if h.Error != "" {
					fmt.Fprintf(w, "error:     %s\n", h.Error)
				}
			}

			if !h.IntegrityCheck {
				return NewExitError(ExitFailure, "integrity check failed")
			}
			return nil
		},
	}
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}
