package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/serene/backend/internal/service/memory"
)

var memoryJSON bool

// memoryCmd inspects the long term memory store offline.
var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or edit long term memory",
	Long: `Inspect or edit the facts the companion remembers about the user.

Available subcommands:
  list    - Print every stored fact
  context - Print the digest injected into conversations
  forget  - Delete a fact by id`,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored fact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(store *memory.Store) error {
			return printFacts(cmd.OutOrStdout(), store, memoryJSON)
		})
	},
}

var memoryContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the digest injected into conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(store *memory.Store) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), store.GetContext())
			return err
		})
	},
}

var memoryForgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a fact by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(store *memory.Store) error {
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no fact with id %s\n", args[0])
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return err
		})
	},
}

func init() {
	memoryListCmd.Flags().BoolVar(&memoryJSON, "json", false, "print facts as JSON")
	memoryCmd.AddCommand(memoryListCmd, memoryContextCmd, memoryForgetCmd)
}

// withStore opens the configured backend without starting the extraction
// worker.
func withStore(ctx context.Context, fn func(*memory.Store) error) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	backend, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	store, err := memory.NewStore(ctx, backend, offlineGenerator{}, memory.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

func printFacts(w io.Writer, store *memory.Store, asJSON bool) error {
	facts := store.GetAll()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(facts)
	}
	for _, f := range facts {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.CreatedAt, f.Text); err != nil {
			return err
		}
	}
	return nil
}
