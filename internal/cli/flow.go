package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
)

func newFlowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage stored flows",
	}

	cmd.AddCommand(
		newFlowListCmd(e),
		newFlowShowCmd(e),
		newFlowImportCmd(e),
		newFlowExportCmd(e),
		newFlowDeleteCmd(e),
	)
	return cmd
}

// withStore opens the configured store for the duration of fn.
func (e *env) withStore(cmd *cobra.Command, fn func(store flowstore.Store) error) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	store, err := e.openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newFlowListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored flows, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd, func(store flowstore.Store) error {
				infos, err := store.List(cmd.Context())
				if err != nil {
					return err
				}

				headers := []string{"ID", "NAME", "PROVIDER", "UPDATED", "SIZE"}
				rows := make([][]string, len(infos))
				for i, info := range infos {
					rows[i] = []string{
						info.ID,
						info.Name,
						info.ProviderID,
						info.UpdatedAt.Format(time.RFC3339),
						strconv.FormatInt(info.Size, 10),
					}
				}
				return e.output(cmd).Print(headers, rows, infos)
			})
		},
	}
}

func newFlowShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the nodes of a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd, func(store flowstore.Store) error {
				rec, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load flow %s: %w", args[0], err)
				}

				headers := []string{"NODE", "TYPE", "LABEL", "PARENT"}
				rows := make([][]string, len(rec.Nodes))
				for i, n := range rec.Nodes {
					label := ""
					if n.Data != nil {
						label = n.Data.Settings().Label
					}
					rows[i] = []string{n.ID, string(n.Type), label, n.ParentID}
				}
				out := e.output(cmd)
				out.Info(fmt.Sprintf("%s (%s): %d nodes, %d edges", rec.Name, rec.ID, len(rec.Nodes), len(rec.Edges)))
				return out.Print(headers, rows, rec)
			})
		},
	}
}

func newFlowImportCmd(e *env) *cobra.Command {
	var id, name string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Save a flow JSON file to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			rec, err := decodeRecord(args[0], data)
			if err != nil {
				return err
			}
			if id != "" {
				rec.ID = id
			}
			if rec.ID == "" {
				rec.ID = uuid.New().String()
			}
			if name != "" {
				rec.Name = name
			}
			if _, err := promptgraph.BuildPlan(rec.Nodes, rec.Edges); err != nil {
				e.logger.Warn("imported flow cannot run as is", "flow_id", rec.ID, "error", err.Error())
			}

			return e.withStore(cmd, func(store flowstore.Store) error {
				if err := store.Save(cmd.Context(), rec); err != nil {
					return err
				}
				out := e.output(cmd)
				out.Info("Flow imported: " + rec.ID)
				return out.Print([]string{"ID", "NAME"}, [][]string{{rec.ID, rec.Name}}, map[string]string{"id": rec.ID, "name": rec.Name})
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Store under this ID instead of the file's")
	cmd.Flags().StringVar(&name, "name", "", "Override the flow name")
	return cmd
}

func newFlowExportCmd(e *env) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a stored flow as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd, func(store flowstore.Store) error {
				rec, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load flow %s: %w", args[0], err)
				}
				if file == "" {
					return NewOutput(true, cmd.OutOrStdout(), cmd.ErrOrStderr()).JSON(rec)
				}

				data, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return fmt.Errorf("encode flow %s: %w", rec.ID, err)
				}
				if err := os.WriteFile(file, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", file, err)
				}
				e.output(cmd).Info("Flow exported to " + file)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newFlowDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd, func(store flowstore.Store) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				e.output(cmd).Info("Flow deleted: " + args[0])
				return nil
			})
		},
	}
}
