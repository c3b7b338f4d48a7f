package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/qool/pkg/qool"
)

var (
	dequeueCount int
	peekCount    int
	peekAfter    string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <value>...",
	Short: "Append one or more values to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(qool.Options{}, func(ctx context.Context, q *qool.Queue) error {
			keys := make([]string, 0, len(args))
			for _, v := range args {
				k, err := q.Enqueue(ctx, []byte(v))
				if err != nil {
					return fmt.Errorf("enqueue %q: %w", v, err)
				}
				keys = append(keys, k.String())
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"keys": keys})
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		})
	},
}

var dequeueCmd = &cobra.Command{
	Use:   "dequeue",
	Short: "Remove and print the oldest entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(qool.Options{}, func(ctx context.Context, q *qool.Queue) error {
			var items []qool.Item
			for range max(dequeueCount, 1) {
				item, ok, err := q.Dequeue(ctx)
				if err != nil {
					return fmt.Errorf("dequeue: %w", err)
				}
				if !ok {
					break
				}
				items = append(items, item)
			}
			return printItems(cmd.OutOrStdout(), items)
		})
	},
}

var peekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Print entries without removing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		var after qool.Key
		if peekAfter != "" {
			k, err := qool.ParseKey(peekAfter)
			if err != nil {
				return err
			}
			after = k
		}
		return withQueue(qool.Options{}, func(ctx context.Context, q *qool.Queue) error {
			items, err := q.Peek(ctx, peekCount, after)
			if err != nil {
				return fmt.Errorf("peek: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <label:seq>...",
	Short: "Delete entries by key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]qool.Key, 0, len(args))
		for _, a := range args {
			k, err := qool.ParseKey(a)
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return withQueue(qool.Options{}, func(ctx context.Context, q *qool.Queue) error {
			for _, k := range keys {
				if err := q.Delete(ctx, k); err != nil {
					return fmt.Errorf("delete %s: %w", k, err)
				}
			}
			if !outputJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", len(keys))
			}
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(qool.Options{}, func(ctx context.Context, q *qool.Queue) error {
			depth, head, err := queueDepth(ctx, q)
			if err != nil {
				return err
			}
			out := map[string]any{"depth": depth, "store": storeBackend, "data_dir": dataDir}
			if depth > 0 {
				out["head"] = head.String()
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "depth: %d\n", depth)
			if depth > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "head:  %s\n", head)
			}
			return nil
		})
	},
}

// queueDepth pages through the queue with bookmarked peeks.
func queueDepth(ctx context.Context, q *qool.Queue) (int, qool.Key, error) {
	const page = 1000
	var (
		after qool.Key
		head  qool.Key
		n     int
	)
	for {
		items, err := q.Peek(ctx, page, after)
		if err != nil {
			return 0, qool.Key{}, fmt.Errorf("peek: %w", err)
		}
		if n == 0 && len(items) > 0 {
			head = items[0].Key
		}
		n += len(items)
		if len(items) < page {
			return n, head, nil
		}
		after = items[len(items)-1].Key
	}
}

type itemJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func printItems(w io.Writer, items []qool.Item) error {
	if outputJSON {
		out := make([]itemJSON, 0, len(items))
		for _, it := range items {
			out = append(out, itemJSON{Key: it.Key.String(), Value: string(it.Value)})
		}
		return writeJSON(w, out)
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "queue is empty")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\n", it.Key, it.Value)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, cmd := range []*cobra.Command{enqueueCmd, dequeueCmd, peekCmd, deleteCmd, statsCmd} {
		cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Output as JSON")
	}
	dequeueCmd.Flags().IntVarP(&dequeueCount, "count", "n", 1, "Number of entries to dequeue")
	peekCmd.Flags().IntVarP(&peekCount, "count", "n", 10, "Number of entries to show")
	peekCmd.Flags().StringVar(&peekAfter, "after", "", "Only show entries after this key (label:seq)")

	rootCmd.AddCommand(enqueueCmd, dequeueCmd, peekCmd, deleteCmd, statsCmd)
}
