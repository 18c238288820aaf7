package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/roach88/persistq/internal/queue"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Limit int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored items in dequeue order",
		Long: `List stored items in the order they would be taken.

Items taken in no-auto-commit mode but not yet marked done are still
stored and appear in the listing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many items (0 for all)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	q, err := opts.openQueue(cmd)
	if err != nil {
		return err
	}
	defer closeQueue(cmd, q)

	items, err := q.Items(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "list failed", err)
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	f := opts.formatter(cmd)
	if f.Format == "json" {
		views := make([]ItemView, 0, len(items))
		for i := range items {
			views = append(views, viewOf(&items[i]))
		}
		return f.Success(views)
	}

	if len(items) == 0 {
		return f.Success("queue empty")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderItems(q, items, isTerminal(out)))
	return nil
}

func renderItems(q *queue.Queue, items []queue.Item, rounded bool) string {
	tw := table.NewWriter()
	if rounded {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	tw.AppendHeader(table.Row{"ID", "VALUE", "SIZE", "AGE"})

	for _, item := range items {
		size := "-"
		if data, err := q.Codec().Marshal(item.Value); err == nil {
			size = humanize.Bytes(uint64(len(data)))
		}
		tw.AppendRow(table.Row{item.ID, displayValue(item.Value), size, humanize.Time(item.Timestamp)})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, WidthMax: 60},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
