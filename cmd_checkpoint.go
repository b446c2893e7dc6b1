package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/vectorsim/storage"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"cp"},
		Short:   "Manage saved runs",
		Long: `List, show and delete checkpoints saved with --checkpoint.

Examples:
  vectorsim checkpoint list --kind population
  vectorsim checkpoint show dry-season
  vectorsim checkpoint delete dry-season`,
	}
	cmd.AddCommand(
		newCheckpointListCmd(),
		newCheckpointShowCmd(),
		newCheckpointDeleteCmd(),
	)
	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			var f storage.Filter
			f.Kind, _ = cmd.Flags().GetString("kind")
			f.Species, _ = cmd.Flags().GetString("species")
			f.Limit, _ = cmd.Flags().GetInt("limit")

			cps, err := a.runner.Checkpoints(cmd.Context(), f)
			if err != nil {
				return err
			}
			if a.json {
				views := make([]checkpointView, len(cps))
				for i, cp := range cps {
					views[i] = newCheckpointView(cp, false)
				}
				return a.print(views, nil)
			}
			printCheckpoints(a.out, cps)
			return nil
		},
	}
	cmd.Flags().String("kind", "", "Only this run kind (population, predator_prey, predation_comparison, agents, hybrid, scenario_comparison)")
	cmd.Flags().String("species", "", "Only this species")
	cmd.Flags().Int("limit", 0, "Maximum number of checkpoints (0 = all)")
	return cmd
}

// checkpointView renders the stored JSON request and result inline.
type checkpointView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Species   string          `json:"species"`
	Days      int             `json:"days"`
	CreatedAt time.Time       `json:"created_at"`
	Request   json.RawMessage `json:"request,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func newCheckpointView(cp storage.Checkpoint, full bool) checkpointView {
	v := checkpointView{
		ID:        cp.ID,
		Name:      cp.Name,
		Kind:      cp.Kind,
		Species:   cp.Species,
		Days:      cp.Days,
		CreatedAt: cp.Created().UTC(),
	}
	if full {
		v.Request = json.RawMessage(cp.Request)
		v.Result = json.RawMessage(cp.Result)
	}
	return v
}

func newCheckpointShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Print a checkpoint with its request and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cp, err := a.runner.Checkpoint(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("checkpoint %q: %w", args[0], err)
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(newCheckpointView(cp, true))
		},
	}
}

func newCheckpointDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.runner.DeleteCheckpoint(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("checkpoint %q: %w", args[0], err)
			}
			return a.print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted checkpoint %s\n", args[0])
			})
		},
	}
}
