package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/persistq/internal/codec"
	"github.com/roach88/persistq/internal/queue"
)

// ItemView is the JSON shape of a queue item in command output.
type ItemView struct {
	ID        int64     `json:"id"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func viewOf(item *queue.Item) ItemView {
	return ItemView{ID: item.ID, Value: item.Value, Timestamp: item.Timestamp}
}

// parseValue reads a command-line argument as a JSON literal, falling back
// to the raw string. "42" is a number, "hello" a string.
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err == nil {
			return v
		}
	}
	return arg
}

// displayValue renders strings bare and everything else as compact JSON.
func displayValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := codec.JSON{}.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", arg))
	}
	return id, nil
}

// emptyError reports an empty queue in the configured format and returns the
// matching exit error.
func emptyError(f *OutputFormatter) error {
	if f.Format == "json" {
		_ = f.Error("E_EMPTY", "queue empty", nil)
	}
	return NewExitError(ExitEmpty, "queue empty")
}

// PutResult describes one put in JSON output.
type PutResult struct {
	ID       int64 `json:"id"`
	Inserted bool  `json:"inserted"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <value>...",
		Short: "Append values to the queue",
		Long: `Append one or more values to the queue.

Each argument is parsed as a JSON literal when possible and stored as a
plain string otherwise. On a unique queue a value already queued is
rejected and reported, not treated as an error.

Examples:
  persistq put hello
  persistq put 42 '{"job": "resize", "id": 7}'
  persistq --variant unique put task-1 task-1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			f := rootOpts.formatter(cmd)
			results := make([]PutResult, 0, len(args))
			for _, arg := range args {
				id, err := q.Put(cmd.Context(), parseValue(arg))
				if err != nil {
					return WrapExitError(ExitFailure, "put failed", err)
				}
				results = append(results, PutResult{ID: id, Inserted: id != queue.NotInserted})
			}

			if f.Format == "json" {
				return f.Success(results)
			}
			w := cmd.OutOrStdout()
			for i, r := range results {
				if r.Inserted {
					fmt.Fprintf(w, "%d\n", r.ID)
				} else {
					fmt.Fprintf(w, "rejected (duplicate): %s\n", args[i])
				}
			}
			return nil
		},
	}
}

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Block   bool
	Timeout time.Duration
	ID      int64
	Done    bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Take the next item from the queue",
		Long: `Take the next item from the queue and print its value.

With --no-auto-commit the item stays stored until it is marked done;
pass --done to finalize it before exiting.

Exit codes:
  0 - An item was returned
  3 - The queue was empty (after --timeout when blocking)

Examples:
  persistq get
  persistq get --block --timeout 5s
  persistq --no-auto-commit get --done`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Block, "block", false, "wait for an item")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "maximum wait with --block (0 waits forever)")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "take the item with this id instead of the head")
	cmd.Flags().BoolVar(&opts.Done, "done", false, "finalize the item (no-auto-commit mode)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command) error {
	q, err := opts.openQueue(cmd)
	if err != nil {
		return err
	}
	defer closeQueue(cmd, q)

	f := opts.formatter(cmd)
	item, err := q.GetItem(cmd.Context(), queue.GetOptions{
		Block:   opts.Block,
		Timeout: opts.Timeout,
		ID:      opts.ID,
	})
	if queue.IsEmpty(err) {
		return emptyError(f)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "get failed", err)
	}

	if opts.Done {
		removed, err := q.Done(cmd.Context())
		if err != nil {
			return WrapExitError(ExitFailure, "done failed", err)
		}
		f.VerboseLog("finalized %d item(s)", removed)
	}

	f.VerboseLog("item id=%d queued %s", item.ID, item.Timestamp.Format(time.RFC3339))
	if f.Format == "json" {
		return f.Success(viewOf(item))
	}
	return f.Success(displayValue(item.Value))
}

// NewPeekCommand creates the peek command.
func NewPeekCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "peek",
		Short:         "Show the next item without taking it",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			f := rootOpts.formatter(cmd)
			item, err := q.Peek(cmd.Context())
			if queue.IsEmpty(err) {
				return emptyError(f)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "peek failed", err)
			}

			if f.Format == "json" {
				return f.Success(viewOf(item))
			}
			return f.Success(displayValue(item.Value))
		},
	}
}

// NewSizeCommand creates the size command.
func NewSizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "size",
		Short:         "Print the number of queued items",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(map[string]int{"size": q.Size()})
			}
			return f.Success(q.Size())
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <value>",
		Short: "Replace the value of a queued item",
		Example: `  persistq update 3 '{"job": "resize", "retries": 1}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			f := rootOpts.formatter(cmd)
			err = q.Update(cmd.Context(), id, parseValue(args[1]))
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrNotFound):
				return WrapExitError(ExitFailure, fmt.Sprintf("item %d not found", id), err)
			case queue.IsDuplicate(err):
				return WrapExitError(ExitFailure, "value already queued", err)
			default:
				return WrapExitError(ExitFailure, "update failed", err)
			}

			if f.Format == "json" {
				return f.Success(map[string]int64{"id": id})
			}
			return f.Success(fmt.Sprintf("updated %d", id))
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Delete a queued item by id",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			ok, err := q.Remove(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "remove failed", err)
			}
			if !ok {
				return NewExitError(ExitFailure, fmt.Sprintf("item %d not found", id))
			}

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(map[string]int64{"id": id})
			}
			return f.Success(fmt.Sprintf("removed %d", id))
		},
	}
}

// NewShrinkCommand creates the shrink command.
func NewShrinkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "shrink",
		Short:         "Reclaim disk space left by deleted items",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := rootOpts.openQueue(cmd)
			if err != nil {
				return err
			}
			defer closeQueue(cmd, q)

			if err := q.Shrink(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "shrink failed", err)
			}
			return rootOpts.formatter(cmd).Success("database vacuumed")
		},
	}
}
