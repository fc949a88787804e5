package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/rfm-flow/internal/cli"
	"github.com/Veraticus/rfm-flow/internal/storage"
	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage database checkpoints",
		Long: `Create, list, restore, and delete database checkpoints.

Every stage replaces the customer table wholesale. A checkpoint keeps a copy
of the database so an earlier stage's output can be brought back.`,
		Example: `  # Snapshot the clustered table before experimenting with k
  rfm checkpoint create --tag "k4-baseline"

  # List all checkpoints
  rfm checkpoint list

  # Restore from a checkpoint
  rfm checkpoint restore k4-baseline

  # Delete an old checkpoint
  rfm checkpoint delete k4-baseline`,
	}

	cmd.AddCommand(createCheckpointCmd())
	cmd.AddCommand(listCheckpointsCmd())
	cmd.AddCommand(restoreCheckpointCmd())
	cmd.AddCommand(deleteCheckpointCmd())

	return cmd
}

// withCheckpoints opens the store and hands its checkpoint manager to fn,
// which owns closing the store.
func withCheckpoints(cmd *cobra.Command, fn func(store *storage.SQLiteStorage, manager *storage.CheckpointManager) error) error {
	store, _, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}

	manager, err := store.NewCheckpointManager()
	if err != nil {
		closeStore(store)
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	return fn(store, manager)
}

func createCheckpointCmd() *cobra.Command {
	var tag, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the current database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(store *storage.SQLiteStorage, manager *storage.CheckpointManager) error {
				defer closeStore(store)

				info, err := manager.Create(cmd.Context(), tag, description)
				if err != nil {
					return fmt.Errorf("failed to create checkpoint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Created checkpoint %s (%s, %s)", info.ID, formatFileSize(info.FileSize), plural(info.Customers, "customer"))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Checkpoint name (timestamped if empty)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-form note stored with the checkpoint")
	return cmd
}

func listCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCheckpoints(cmd, func(store *storage.SQLiteStorage, manager *storage.CheckpointManager) error {
				defer closeStore(store)

				checkpoints, err := manager.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list checkpoints: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(checkpoints) == 0 {
					fmt.Fprintln(out, cli.SubtleStyle.Render("No checkpoints found."))
					return nil
				}

				rows := make([][]string, 0, len(checkpoints))
				for _, cp := range checkpoints {
					kind := "manual"
					if cp.IsAuto {
						kind = "auto"
					}
					rows = append(rows, []string{
						cli.InfoStyle.Render(cp.ID),
						formatRelativeTime(cp.CreatedAt),
						formatFileSize(cp.FileSize),
						strconv.Itoa(cp.Customers),
						strconv.Itoa(cp.Runs),
						cli.SubtleStyle.Render(kind),
						cp.Description,
					})
				}
				fmt.Fprintln(out, cli.RenderTable(
					[]string{"Name", "Created", "Size", "Customers", "Runs", "Type", "Description"}, rows))
				return nil
			})
		},
	}
}

func restoreCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint-id>",
		Short: "Replace the database with a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd, func(store *storage.SQLiteStorage, manager *storage.CheckpointManager) error {
				ctx := cmd.Context()
				info, err := manager.Get(ctx, id)
				if err != nil {
					closeStore(store)
					return fmt.Errorf("failed to get checkpoint info: %w", err)
				}

				if !force && !confirmCheckpoint(cmd, "replace the current database with", info) {
					closeStore(store)
					return nil
				}

				// Restore closes the store's connection itself.
				if err := manager.Restore(ctx, id); err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Restored checkpoint %s (%s)", id, plural(info.Customers, "customer"))))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func deleteCheckpointCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <checkpoint-id>",
		Short: "Remove a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withCheckpoints(cmd, func(store *storage.SQLiteStorage, manager *storage.CheckpointManager) error {
				defer closeStore(store)

				ctx := cmd.Context()
				info, err := manager.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get checkpoint info: %w", err)
				}
				if !force && !confirmCheckpoint(cmd, "permanently delete", info) {
					return nil
				}

				if err := manager.Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete checkpoint: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted checkpoint "+id))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

// confirmCheckpoint describes the checkpoint an action will touch and asks
// for a yes on stdin.
func confirmCheckpoint(cmd *cobra.Command, action string, info *storage.CheckpointInfo) bool {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("This will %s checkpoint %s.", action, info.ID)))
	fmt.Fprintf(out, "  Created: %s  Size: %s  Customers: %d\n",
		info.CreatedAt.Local().Format(time.DateTime), formatFileSize(info.FileSize), info.Customers)
	if info.Description != "" {
		fmt.Fprintf(out, "  Description: %s\n", info.Description)
	}

	if confirm(cmd.InOrStdin(), out) {
		return true
	}
	fmt.Fprintln(out, cli.SubtleStyle.Render("Cancelled."))
	return false
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nContinue? (y/N) ")
	response, _ := bufio.NewReader(in).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(response)), "y")
}
